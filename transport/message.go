package transport

import "encoding/json"

// Frame types on the sync protocol.
const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgUpdate      = "update"
	msgError       = "error"
)

// clientMessage is a frame sent to the deployment.
type clientMessage struct {
	Type     string         `json:"type"`
	ID       uint64         `json:"id"`
	Function string         `json:"function,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
}

// serverMessage is a frame received from the deployment.
type serverMessage struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id"`
	Value   json.RawMessage `json:"value,omitempty"`
	Message string          `json:"message,omitempty"`
}
