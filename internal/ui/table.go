package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muurk/tempnode/internal/announce"
	"github.com/muurk/tempnode/internal/collector"
	"github.com/muurk/tempnode/internal/sensor"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(MutedColor)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle.Padding(0, 1)
			}
			return TableCellStyle.Padding(0, 1)
		})
}

// RenderNodeTable lists nodes found by an mDNS scan.
func RenderNodeTable(nodes []*announce.Node) string {
	t := newTable("Sensor", "Instance", "Address", "SSID", "Version")
	for _, n := range nodes {
		t.Row(strconv.Itoa(n.SensorID), n.Instance, n.Address(), n.SSID, n.Version)
	}
	return t.String()
}

// RenderPortTable lists serial ports a sensor bridge could be attached to.
func RenderPortTable(ports []sensor.Port) string {
	t := newTable("Port", "USB", "VID:PID", "Serial", "Description")
	for _, p := range ports {
		usb, ids := "no", ""
		if p.USB {
			usb = "yes"
			ids = p.VID + ":" + p.PID
		}
		t.Row(p.Name, usb, ids, p.SerialNumber, p.Description)
	}
	return t.String()
}

// RenderSensorTable lists collector sensors with their latest state.
func RenderSensorTable(sensors []collector.Sensor, now time.Time) string {
	t := newTable("ID", "Name", "Temp", "Humidity", "Reading", "Heartbeat")
	for _, s := range sensors {
		t.Row(
			strconv.Itoa(s.ID),
			s.Name,
			temperatureText(s),
			optionalFloat(s.LastHumidity, "%.1f%%"),
			age(s.LastTimeStamp, now),
			age(s.LastHeartbeat, now),
		)
	}
	return t.String()
}

func temperatureText(s collector.Sensor) string {
	if s.DisplayTempF == nil {
		return "-"
	}
	text := fmt.Sprintf("%.1f°F", *s.DisplayTempF)
	if s.OutOfRange {
		return lipgloss.NewStyle().Foreground(ErrorColor).Render(text + " !")
	}
	return lipgloss.NewStyle().Foreground(SuccessColor).Render(text)
}

func optionalFloat(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func age(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	d := now.Sub(*t)
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String() + " ago"
}
