package reconcile

import (
	"fmt"
	"testing"

	"github.com/repairtracker/repairsync/internal/wire"
)

type testRecord struct {
	ID   int64  `json:"id"`
	V    int    `json:"v"`
	Name string `json:"name,omitempty"`
}

func (r testRecord) RecordID() int64 { return r.ID }

func update(t *testing.T, records string) wire.Envelope {
	t.Helper()
	env, err := wire.Decode([]byte(fmt.Sprintf(
		`{"type":"update","channel":"main:orders","data":%s}`, records)))
	if err != nil {
		t.Fatalf("bad test envelope: %v", err)
	}
	return env
}

func del(keys ...string) wire.Envelope {
	return wire.NewDelete("main:orders", keys)
}

func ids(records []testRecord) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestUpsertAppendsNewRecords(t *testing.T) {
	c := NewCollection[testRecord]()

	if err := c.Apply(update(t, `[{"id":3,"v":1},{"id":7,"v":1}]`)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got := c.Snapshot()
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 7 {
		t.Errorf("ids = %v, want [3 7]", ids(got))
	}
}

func TestUpsertReplacesInPlace(t *testing.T) {
	c := NewCollection[testRecord]()

	c.Apply(update(t, `[{"id":3,"v":1},{"id":7,"v":1},{"id":9,"v":1}]`))
	c.Apply(update(t, `[{"id":7,"v":2}]`))

	got := c.Snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Relative order of other elements preserved, replaced value in place.
	if got[0].ID != 3 || got[1].ID != 7 || got[2].ID != 9 {
		t.Errorf("ids = %v, want [3 7 9]", ids(got))
	}
	if got[1].V != 2 {
		t.Errorf("record 7 v = %d, want 2 (full replacement)", got[1].V)
	}
}

func TestUpdateSequenceLastWins(t *testing.T) {
	// For any sequence of updates applied to an empty collection, the
	// result holds exactly one record per distinct id, equal to the last
	// record supplied for that id.
	c := NewCollection[testRecord]()

	c.Apply(update(t, `[{"id":1,"v":1},{"id":2,"v":1}]`))
	c.Apply(update(t, `[{"id":2,"v":2},{"id":3,"v":1}]`))
	c.Apply(update(t, `[{"id":1,"v":3}]`))

	got := c.Snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	want := map[int64]int{1: 3, 2: 2, 3: 1}
	for _, rec := range got {
		if rec.V != want[rec.ID] {
			t.Errorf("record %d v = %d, want %d", rec.ID, rec.V, want[rec.ID])
		}
	}
}

func TestDuplicateIDWithinOneEnvelope(t *testing.T) {
	c := NewCollection[testRecord]()

	c.Apply(update(t, `[{"id":5,"v":1},{"id":5,"v":2}]`))

	got := c.Snapshot()
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != 5 || got[0].V != 2 {
		t.Errorf("record = %+v, want {id:5 v:2}", got[0])
	}
}

func TestFullReplacementNoFieldMerge(t *testing.T) {
	c := NewCollection[testRecord]()

	c.Apply(update(t, `[{"id":3,"v":1,"name":"original"}]`))
	c.Apply(update(t, `[{"id":3,"v":2}]`))

	got, ok := c.Get(3)
	if !ok {
		t.Fatal("record 3 missing")
	}
	if got.Name != "" {
		t.Errorf("Name = %q, want empty: incoming record fully replaces prior value", got.Name)
	}
}

func TestDeleteByCompositeKey(t *testing.T) {
	c := NewCollection[testRecord]()

	c.Apply(update(t, `[{"id":3,"v":1},{"id":7,"v":1}]`))
	c.Apply(del("RO-3"))

	got := c.Snapshot()
	if len(got) != 1 || got[0].ID != 7 {
		t.Errorf("ids = %v, want [7]", ids(got))
	}
}

func TestDeleteUnknownPrefixNeverMatches(t *testing.T) {
	c := NewCollection[testRecord]()

	c.Apply(update(t, `[{"id":9,"v":1}]`))
	c.Apply(del("ZZ-9"))

	if c.Len() != 1 {
		t.Error("record 9 removed by an invalid-prefix key")
	}
}

func TestDeleteMalformedKeySkippedOthersApply(t *testing.T) {
	c := NewCollection[testRecord]()

	c.Apply(update(t, `[{"id":3,"v":1},{"id":7,"v":1},{"id":9,"v":1}]`))
	c.Apply(del("garbage", "RO-7", "RO-"))

	got := c.Snapshot()
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 9 {
		t.Errorf("ids = %v, want [3 9]", ids(got))
	}
}

func TestDeleteMissingIDIsNoOp(t *testing.T) {
	c := NewCollection[testRecord]()

	c.Apply(update(t, `[{"id":3,"v":1}]`))
	c.Apply(del("RO-42"))

	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	c := NewCollection[testRecord]()

	env := update(t, `[{"id":3,"v":1},{"id":7,"v":2}]`)
	c.Apply(env)
	first := c.Snapshot()
	c.Apply(env)
	second := c.Snapshot()

	if len(first) != len(second) {
		t.Fatalf("len changed: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("index %d changed: %+v -> %+v", i, first[i], second[i])
		}
	}
}

func TestApplyIgnoresOtherEnvelopeTypes(t *testing.T) {
	c := NewCollection[testRecord]()
	c.Apply(update(t, `[{"id":3,"v":1}]`))

	err := c.Apply(wire.Envelope{Type: wire.TypeError, Channel: wire.MessagesChannel, Message: "boom"})
	if err != nil {
		t.Errorf("error envelope should be ignored, got %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

func TestApplyRejectsMalformedUpdateData(t *testing.T) {
	c := NewCollection[testRecord]()
	c.Apply(update(t, `[{"id":3,"v":1}]`))

	env := wire.Envelope{
		Type:    wire.TypeUpdate,
		Channel: "main:orders",
		Data:    []byte(`{"not":"an array"}`),
	}
	if err := c.Apply(env); err == nil {
		t.Fatal("Apply succeeded on malformed data, want error")
	}
	if c.Len() != 1 {
		t.Errorf("collection mutated by rejected envelope, len = %d", c.Len())
	}
}

func TestGet(t *testing.T) {
	c := NewCollection[testRecord]()
	c.Apply(update(t, `[{"id":3,"v":1}]`))

	if _, ok := c.Get(3); !ok {
		t.Error("Get(3) missing")
	}
	if _, ok := c.Get(4); ok {
		t.Error("Get(4) found nonexistent record")
	}
}
