package model

// Assignee is a person repair units can be assigned to.
type Assignee struct {
	ID       int64  `json:"id"`
	Key      string `json:"key"` // "AS-<id>"
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Status is a workflow state for orders and units.
type Status struct {
	ID                 int64  `json:"id"`
	Key                string `json:"key"` // "ST-<id>"
	Status             string `json:"status"`
	Color              string `json:"color"`
	IsEndingStatus     bool   `json:"is_ending_status"`
	CanUseForOrder     bool   `json:"can_use_for_order"`
	CanUseForMachine   bool   `json:"can_use_for_machine"`
	CanUseForHashboard bool   `json:"can_use_for_hashboard"`
}

// UnitModel is a hardware model a repair unit can be an instance of.
type UnitModel struct {
	ID   int64  `json:"id"`
	Key  string `json:"key"` // "UM-<id>"
	Name string `json:"name"`
}

// RepairOrder is the metadata record for one repair order.
type RepairOrder struct {
	ID               int64  `json:"id"`
	Key              string `json:"key"` // "RO-<id>"
	Name             string `json:"name"`
	StatusID         int64  `json:"status_id"`
	Summary          string `json:"summary"`
	Color            string `json:"color"`
	Created          string `json:"created"`
	Received         string `json:"received"`
	ReceivedQuantity int    `json:"received_quantity"`
	Started          string `json:"started"`
	Finished         string `json:"finished"`
}

// StatusEvent is one entry in a repair unit's status history. The first
// event is created with the unit and is never deleted.
type StatusEvent struct {
	ID        string `json:"id"`         // uuid assigned by the server
	Type      string `json:"type"`       // "status"
	Assignee  string `json:"assignee"`   // "AS-<id>" or empty
	Timestamp string `json:"timestamp"`
	StatusKey string `json:"status_key"` // "ST-<id>"
}

// RepairUnit is a single machine or hashboard inside a repair order.
type RepairUnit struct {
	ID                int64         `json:"id"`
	Key               string        `json:"key"` // "RU-<id>"
	Serial            string        `json:"serial"`
	Type              string        `json:"type"` // "machine" or "hashboard"
	ModelID           int64         `json:"model_id"`
	CurrentStatusID   int64         `json:"current_status_id"`
	CurrentAssigneeID int64         `json:"current_assignee_id"`
	RepairOrderID     int64         `json:"repair_order_id"`
	Created           string        `json:"created"`
	UpdatedAt         string        `json:"updated_at"`
	Events            []StatusEvent `json:"events_json"`
}

// RecordID implements reconcile.Record for each entity type.

func (a Assignee) RecordID() int64    { return a.ID }
func (s Status) RecordID() int64      { return s.ID }
func (m UnitModel) RecordID() int64   { return m.ID }
func (o RepairOrder) RecordID() int64 { return o.ID }
func (u RepairUnit) RecordID() int64  { return u.ID }
