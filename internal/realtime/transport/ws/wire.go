// Package ws carries change frames over websockets. The client side opens one
// connection per push channel; the sync gateway speaks the same envelope on
// the server side.
package ws

import "encoding/json"

const (
	FrameTypeSubscribe  = "sync.subscribe"
	FrameTypeSubscribed = "sync.subscribed"
	FrameTypeChange     = "sync.change"
	FrameTypeError      = "sync.error"
)

// Frame is the envelope every websocket message travels in.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload asks the gateway to stream one collection scope.
type SubscribePayload struct {
	Collection string `json:"collection"`
	ScopeKey   string `json:"scope_key"`
}

// SubscribedPayload acknowledges a subscription.
type SubscribedPayload struct {
	Collection string `json:"collection"`
	ScopeKey   string `json:"scope_key"`
	ServerTime string `json:"server_time"`
}

// ErrorPayload reports a per-frame failure without closing the connection.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
