package wire

import (
	"encoding/json"
	"fmt"
)

// Envelope types.
const (
	TypeConnected = "connected"
	TypeUpdate    = "update"
	TypeDelete    = "delete"
	TypeSubscribe = "subscribe"
	TypeError     = "error"
	TypePing      = "ping"
	TypePong      = "pong"
)

// Well-known channels.
const (
	// MessagesChannel carries out-of-band server error notices. The server
	// pushes it unprompted; clients never subscribe to it explicitly.
	MessagesChannel = "__messages__"

	// MainListsChannel carries assignees, statuses, and unit models.
	MainListsChannel = "main:lists"

	// MainOrdersChannel carries repair order metadata.
	MainOrdersChannel = "main:orders"
)

// OrderChannel returns the channel name for a specific repair order.
func OrderChannel(orderID int64) string {
	return fmt.Sprintf("order:%s", Key(KeyRepairOrder, orderID))
}

// Envelope is the wire message. Data is left raw: "update" carries an array
// of entity records, "delete" an array of composite key strings, and
// "subscribe" a {"channels": [...]} object.
type Envelope struct {
	Type        string          `json:"type"`
	Channel     string          `json:"channel,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	WebsocketID string          `json:"websocket_id,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// subscribeData is the payload of a client subscribe envelope.
type subscribeData struct {
	Channels []string `json:"channels"`
}

// Decode parses a single wire frame into an Envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// Encode serializes an Envelope to a wire frame.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// SessionID extracts the server-assigned connection identifier from a
// "connected" envelope. It is carried either as a top-level websocket_id or
// inside the data object.
func (e Envelope) SessionID() string {
	if e.WebsocketID != "" {
		return e.WebsocketID
	}
	var payload struct {
		WebsocketID string `json:"websocket_id"`
	}
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, &payload); err == nil {
			return payload.WebsocketID
		}
	}
	return ""
}

// SubscribedChannels extracts the channel list from a subscribe envelope.
func (e Envelope) SubscribedChannels() []string {
	var payload subscribeData
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, &payload); err != nil {
			return nil
		}
	}
	return payload.Channels
}

// DeleteKeys extracts the composite key strings from a delete envelope.
func (e Envelope) DeleteKeys() ([]string, error) {
	var keys []string
	if err := json.Unmarshal(e.Data, &keys); err != nil {
		return nil, fmt.Errorf("decode delete keys: %w", err)
	}
	return keys, nil
}

// NewSubscribe builds a client subscribe envelope for the given channels.
func NewSubscribe(channels []string) Envelope {
	data, _ := json.Marshal(subscribeData{Channels: channels})
	return Envelope{
		Type: TypeSubscribe,
		Data: data,
	}
}

// NewUpdate wraps entity records in an update envelope. Records may be
// partial on the outbound path; the server assigns ids and broadcasts the
// materialized records back.
func NewUpdate(channel string, records any) (Envelope, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode update records: %w", err)
	}
	return Envelope{
		Type:    TypeUpdate,
		Channel: channel,
		Data:    data,
	}, nil
}

// NewDelete wraps composite keys in a delete envelope.
func NewDelete(channel string, keys []string) Envelope {
	data, _ := json.Marshal(keys)
	return Envelope{
		Type:    TypeDelete,
		Channel: channel,
		Data:    data,
	}
}

// NewPing builds a keepalive ping envelope.
func NewPing() Envelope {
	return Envelope{Type: TypePing}
}
