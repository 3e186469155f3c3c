package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// StoreChangedMessage announces that a user action changed the persisted
// state. Consumers reload the snapshot themselves; the message only says
// what happened and which months are affected.
type StoreChangedMessage struct {
	Action string `json:"action"`
	// Months lists affected month keys (YYYY-MM). Empty means every month.
	Months    []string  `json:"months,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewStoreChangedMessage(action string, months []string) *StoreChangedMessage {
	return &StoreChangedMessage{
		Action:    action,
		Months:    months,
		Timestamp: time.Now().UTC(),
	}
}

// AllMonths reports whether the change may touch every month.
func (m *StoreChangedMessage) AllMonths() bool {
	return len(m.Months) == 0
}

func (m *StoreChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func StoreChangedMessageFromJSON(data []byte) (*StoreChangedMessage, error) {
	var msg StoreChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Action == "" {
		return nil, fmt.Errorf("message has no action")
	}
	return &msg, nil
}
