// Package wire decodes inbound WebSocket frames from the event broadcaster.
//
// Every text frame is classified exactly once, at this boundary, into one of:
//
//	Control{Kind: ControlPong}  "pong" or {"type":"pong"}; liveness reply, never dispatched
//	Control{Kind: ControlPing}  "ping" from the server; answered with "pong"
//	EventFrame{Event}           a safety event, bare or wrapped in {"type":"event","data":{...}}
//
// Anything else is a *MalformedError wrapping ErrMalformedFrame.
package wire
