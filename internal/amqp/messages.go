package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeOp names the kind of remote write a change message announces.
type ChangeOp string

const (
	ChangeSet    ChangeOp = "set"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangeMessage announces that a record in a remote collection was written.
// It carries no record data; consumers re-run their queries.
type ChangeMessage struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Op         ChangeOp  `json:"op"`
	Origin     string    `json:"origin,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewChangeMessage(collection, id string, op ChangeOp, origin string) *ChangeMessage {
	return &ChangeMessage{
		Collection: collection,
		ID:         id,
		Op:         op,
		Origin:     origin,
		Timestamp:  time.Now().UTC(),
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message and rejects one without a collection.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Collection == "" {
		return nil, fmt.Errorf("change message without collection")
	}
	return &msg, nil
}
