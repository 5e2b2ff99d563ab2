package wire

import (
	"encoding/json"
	"testing"
)

func TestDecodeConnected(t *testing.T) {
	frame := []byte(`{"type":"connected","websocket_id":"abc-123"}`)

	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Type != TypeConnected {
		t.Errorf("Type = %q, want %q", env.Type, TypeConnected)
	}
	if env.SessionID() != "abc-123" {
		t.Errorf("SessionID() = %q, want %q", env.SessionID(), "abc-123")
	}
}

func TestDecodeConnectedDataPayload(t *testing.T) {
	frame := []byte(`{"type":"connected","data":{"websocket_id":"xyz-9"}}`)

	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.SessionID() != "xyz-9" {
		t.Errorf("SessionID() = %q, want %q", env.SessionID(), "xyz-9")
	}
}

func TestDecodeUpdate(t *testing.T) {
	frame := []byte(`{"type":"update","channel":"main:orders","data":[{"id":7,"key":"RO-7","name":"Batch A"}]}`)

	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Type != TypeUpdate {
		t.Errorf("Type = %q, want %q", env.Type, TypeUpdate)
	}
	if env.Channel != "main:orders" {
		t.Errorf("Channel = %q, want %q", env.Channel, "main:orders")
	}

	var records []map[string]any
	if err := json.Unmarshal(env.Data, &records); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if len(records) != 1 || records[0]["name"] != "Batch A" {
		t.Errorf("unexpected records: %v", records)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"truncated json", `{"type":"update","chan`},
		{"not an object", `[1,2,3]`},
		{"missing type", `{"channel":"main:orders"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.frame)); err == nil {
				t.Errorf("Decode(%q) succeeded, want error", tt.frame)
			}
		})
	}
}

func TestDeleteKeys(t *testing.T) {
	env := NewDelete("main:orders", []string{"RO-3", "RO-5"})

	if env.Type != TypeDelete || env.Channel != "main:orders" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	keys, err := env.DeleteKeys()
	if err != nil {
		t.Fatalf("DeleteKeys failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "RO-3" || keys[1] != "RO-5" {
		t.Errorf("keys = %v, want [RO-3 RO-5]", keys)
	}
}

func TestNewSubscribeRoundTrip(t *testing.T) {
	env := NewSubscribe([]string{"main:orders", "order:RO-7"})

	frame, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Type != TypeSubscribe {
		t.Errorf("Type = %q, want %q", decoded.Type, TypeSubscribe)
	}

	channels := decoded.SubscribedChannels()
	if len(channels) != 2 || channels[0] != "main:orders" || channels[1] != "order:RO-7" {
		t.Errorf("channels = %v, want [main:orders order:RO-7]", channels)
	}
}

func TestNewUpdatePartialRecords(t *testing.T) {
	env, err := NewUpdate("main:orders", []map[string]any{{"name": "Batch A"}})
	if err != nil {
		t.Fatalf("NewUpdate failed: %v", err)
	}

	// Outbound records carry no id; the server assigns one.
	var records []map[string]any
	if err := json.Unmarshal(env.Data, &records); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if _, hasID := records[0]["id"]; hasID {
		t.Error("outbound record should not carry an id")
	}
}
