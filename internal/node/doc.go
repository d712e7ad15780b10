// Package node runs the sensor node's control loop.
//
// Each iteration samples the sensor, checks the link and then follows one
// row of Transitions:
//
//	valid  connected  action                                      delay
//	yes    yes        LED on, post reading, LED off                success
//	no     yes        post heartbeat                               success
//	no     no         restart sensor, reconnect                    error
//	yes    no         LED on, LED off, reconnect                   error
//
// No HTTP request is made while the link is down. Reconnection blocks until a
// network is joined, so an iteration never ends disconnected unless the
// process is shutting down.
package node
