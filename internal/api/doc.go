// Package api exposes the read state and operations of the control plane
// over HTTP and WebSocket.
//
// # Overview
//
// The server is a thin presentation layer. It never owns state: jam state
// comes from the jammer controller, traffic from the traffic monitor, status
// lines from the logging ring buffer, and live updates from the event hub.
//
// # Routes
//
//	GET  /api/jam             jammed and pending targets
//	POST /api/jam/{ip}        toggle jamming of one target
//	GET  /api/traffic         latest traffic snapshot
//	POST /api/traffic/toggle  start or stop the monitoring session
//	POST /api/traffic/clear   empty the traffic buffers
//	GET  /api/devices         backend inventory
//	GET  /api/logs            recent status lines
//	GET  /api/ws              WebSocket push of status, jam and traffic
//	GET  /api/health          backend health report
//	GET  /healthz             liveness
//	GET  /metrics             Prometheus metrics
//
// The two toggle routes are limited per client host when a toggle limit is
// configured. Clients over the limit get 429.
//
// # WebSocket Protocol
//
// Clients send {"action":"subscribe","topics":[...]} to choose topics and
// receive {"topic":...,"data":...} messages. Topics can also be preselected
// with the topics query parameter. Subscribing to jam or traffic replies with
// the current state immediately.
package api
