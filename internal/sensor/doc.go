// Package sensor reads ambient temperature and humidity.
//
// A Sampler wraps a Peripheral driver and turns its three raw reads into a
// Reading with a validity flag. Drivers signal failure with NaN rather than an
// error so the control loop sees exactly what the hardware produced.
//
// Drivers:
//   - SerialBridge: a DHT22 behind a microcontroller on a serial port
//   - IIO: the Linux dht11 IIO kernel driver
//   - Sim: synthetic readings for development hosts
package sensor
