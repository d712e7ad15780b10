// Package ui renders terminal output for the tempnode commands with Lip Gloss
// and Bubble Tea.
//
// Most components run once and exit:
//
//   - Header: command banner with ordered parameters
//   - Result: success, warning or failure box
//   - Runner: header, step lines, then a result box
//   - Tables for scanned nodes, serial ports and collector sensors
//
// OutcomeResult maps one control loop iteration onto a Result so that
// "tempnode once" and "tempnode run --verbose" share a rendering.
//
// WatchModel is the only interactive component. It follows a collector's
// websocket feed and redraws the sensor table as reports arrive.
package ui
