package ws

import "encoding/json"

// Envelope types exchanged over websocket connections
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeSubscribed  = "subscribed"
	TypeError       = "error"
)

// Envelope is the frame format in both directions. Content depends on Type.
type Envelope struct {
	Type    string `json:"type"`
	Topic   string `json:"topic,omitempty"`
	Content any    `json:"content,omitempty"`
}

// Encode marshals an envelope into a text frame payload
func Encode(msgType, topic string, content any) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Topic: topic, Content: content})
}

// SubscribeRequest is the content of a subscribe or unsubscribe frame
type SubscribeRequest struct {
	SessionID string `json:"session_id"`
}
