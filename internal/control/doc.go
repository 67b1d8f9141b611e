// Package control is the MQTT command surface of Blue Scout.
//
// A front end publishes a Request to bluescout/command/{action} and
// receives a Response on bluescout/response/{request_id}. Requests are
// rate limited; a request over the limit is answered with RATE_LIMITED
// rather than dropped.
//
// Actions:
//
//	connect, disconnect, send, recv, execute
//	relay_start, relay_stop
//	capture_start, capture_drain, capture_stop
//	discovery_start, discovery_stop, scan, rescan
//	devices, device, connections, annotate, exploit, journal, status
//
// Connection lifecycle changes made through the bridge are announced on
// bluescout/connection/{address} and, when telemetry is configured, written
// as connection_event points.
package control
