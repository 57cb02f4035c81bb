package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Reasons carried by TripChangedMessage.
const (
	ReasonTripCreated    = "trip_created"
	ReasonTripActivated  = "trip_activated"
	ReasonFamilyChanged  = "family_changed"
	ReasonExpenseChanged = "expense_changed"
	ReasonTripArchived   = "trip_archived"
)

// TripChangedMessage tells consumers that a trip's data changed and its
// settlement should be recomputed. It carries only the trip id; consumers
// read current state from the store.
type TripChangedMessage struct {
	MessageID string    `json:"message_id"`
	TripID    int64     `json:"trip_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTripChangedMessage(tripID int64, reason string) *TripChangedMessage {
	return &TripChangedMessage{
		MessageID: uuid.NewString(),
		TripID:    tripID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TripChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TripChangedMessageFromJSON parses a message from JSON bytes
func TripChangedMessageFromJSON(data []byte) (*TripChangedMessage, error) {
	var msg TripChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
