package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"rentbill/internal/core"
)

// Event types carried by BillEventMessage.
const (
	EventBillSaved   = "bill.saved"
	EventBillDeleted = "bill.deleted"
)

// BillEventMessage announces a change to the bill store. The full bill
// snapshot travels with the event so consumers never read the store back.
type BillEventMessage struct {
	Type      string    `json:"type"`
	Bill      core.Bill `json:"bill"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBillEventMessage(eventType string, bill core.Bill) *BillEventMessage {
	return &BillEventMessage{
		Type:      eventType,
		Bill:      bill,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BillEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BillEventMessageFromJSON decodes a message and rejects unknown event types.
func BillEventMessageFromJSON(data []byte) (*BillEventMessage, error) {
	var msg BillEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventBillSaved, EventBillDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return &msg, nil
}
