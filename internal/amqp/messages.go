package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RoutingKeyChanged is the topic every ledger change is published under.
const RoutingKeyChanged = "ledger.changed"

type ChangeKind string

const (
	ChangeCreated        ChangeKind = "transaction_created"
	ChangeUpdated        ChangeKind = "transaction_updated"
	ChangeDeleted        ChangeKind = "transaction_deleted"
	ChangeAccountDeleted ChangeKind = "account_deleted"
)

// ChangeMessage announces that a user's collection changed. It carries no
// transaction data: consumers re-read the collection they care about.
type ChangeMessage struct {
	UserID        string     `json:"user_id"`
	Kind          ChangeKind `json:"kind"`
	TransactionID string     `json:"transaction_id,omitempty"`
	// Origin identifies the publishing process so it can skip its own echo.
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(userID string, kind ChangeKind, transactionID string) *ChangeMessage {
	return &ChangeMessage{
		UserID:        userID,
		Kind:          kind,
		TransactionID: transactionID,
		Timestamp:     time.Now().UTC(),
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errors.New("change message without user_id")
	}
	return &msg, nil
}
