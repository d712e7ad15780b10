// Package report builds and delivers the node's two report types.
//
// A DataPayload carries a valid reading; a HeartbeatPayload only proves the
// node is alive. Both encode as flat JSON objects whose values are all
// strings, for example:
//
//	{"SensorID": "14", "Password": "foobar", "TempF": "72.50", "Humidity": "41.00", "TimeStamp": "2023-11-14T22:13:20Z"}
//	{"SensorID": "14", "Password": "foobar"}
//
// Client.Post performs exactly one HTTP POST. A request that never produced
// an HTTP status is reported with a negative code (see CodeText); anything
// else is returned as received. Neither is retried.
package report
