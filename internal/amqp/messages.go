package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"finsight/internal/core"
)

// ChangeMessage carries one committed row change between processes. The
// receiver refetches the row it needs; the message holds identifiers only.
type ChangeMessage struct {
	Event core.ChangeEvent `json:"event"`
	// Origin identifies the publishing process so a bridge can skip its own
	// messages.
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(ev core.ChangeEvent, origin string) *ChangeMessage {
	return &ChangeMessage{
		Event:     ev,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

// RoutingKey is "{table}.{type}", e.g. "transactions.insert".
func (m *ChangeMessage) RoutingKey() string {
	return RoutingKey(m.Event.Table, m.Event.Type)
}

func RoutingKey(table string, typ core.ChangeType) string {
	return table + "." + string(typ)
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes and validates a message body.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid change event: %w", err)
	}
	return &msg, nil
}
