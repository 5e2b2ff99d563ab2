package archive

import "time"

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultWriterConfig returns production defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Metrics tracks writer activity.
type Metrics struct {
	Upserts int64
	Deletes int64
	Flushes int64
	Errors  int64
	Dropped int64
}

// orderRow is one repair order as stored in the mirror table.
type orderRow struct {
	ID               int64
	Key              string
	Name             string
	StatusID         int64
	Summary          string
	Color            string
	Created          string
	Received         string
	ReceivedQuantity int
	Started          string
	Finished         string
	SyncedAt         int64
}

// unitRow is one repair unit as stored in the mirror table. Events carries
// the status history as raw JSON.
type unitRow struct {
	ID                int64
	Key               string
	Serial            string
	Type              string
	ModelID           int64
	CurrentStatusID   int64
	CurrentAssigneeID int64
	RepairOrderID     int64
	Created           string
	UpdatedAt         string
	Events            []byte
	SyncedAt          int64
}
