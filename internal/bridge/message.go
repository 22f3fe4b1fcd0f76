// Package bridge carries route-change and payment-link messages between an
// embedded client and its hosting parent over a websocket. Payment-link
// hand-off requires an explicit ACK from the parent.
package bridge

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// MessageType discriminates envelopes.
type MessageType string

const (
	TypeRouteChange MessageType = "ROUTE_CHANGE"
	TypePaymentLink MessageType = "PAYMENT_LINK"
	TypeAck         MessageType = "ACK"
)

// Message is the wire envelope.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	URL       string      `json:"url,omitempty"`
	Link      string      `json:"link,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func newMessage(t MessageType) Message {
	id, _ := uuid.NewV4()
	return Message{ID: id.String(), Type: t, Timestamp: time.Now().UnixMilli()}
}
