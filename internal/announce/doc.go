// Package announce advertises sensor nodes over mDNS and finds them again.
//
// A node registers itself as "tempnode-<sensor id>" under the _tempnode._tcp
// service type with TXT records:
//   - sensor_id: the collector identity
//   - version: the firmware version
//   - ssid: the wireless network the node joined
//
// The Scanner is used by the "tempnode scan" command to list nodes on the
// local network.
package announce
