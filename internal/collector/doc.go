// Package collector is a development collection service for tempnode
// sensors. It accepts the reading and heartbeat reports nodes POST, keeps the
// latest state per registered sensor in memory and exposes it over a small
// JSON API, a websocket live feed and Prometheus metrics.
//
// # Routes
//
//	POST /api/v1/reading      reading report
//	POST /api/v1/heartbeat    heartbeat report
//	GET  /api/v1/sensors      all sensors, latest state
//	GET  /api/v1/sensors/{id} one sensor with recent readings
//	GET  /ws                  live feed of accepted reports
//	GET  /metrics             Prometheus exposition
//	GET  /health              liveness
//
// # Authentication
//
// Every report carries SensorID and Password. An unregistered sensor is
// answered with 400 "No such sensor", a wrong password with 401. Values may
// be JSON numbers or strings holding numbers; nodes send strings.
//
// # Calibration
//
// Each sensor may carry a calibration offset in °F. It is added to the raw
// reading for display and range checks; the raw value is kept as LastTempF.
package collector
