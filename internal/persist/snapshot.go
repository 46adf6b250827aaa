// Package persist keeps a versioned snapshot of the local state in a KV medium.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"famledger/internal/core"
)

// SchemaVersion tags the layout of a persisted snapshot. Versions only grow.
type SchemaVersion int

const (
	// V0 is a legacy blob written before snapshots carried a version.
	V0 SchemaVersion = iota
	V1
	V2
	V3

	CurrentVersion = V3
)

func (v SchemaVersion) String() string {
	return fmt.Sprintf("v%d", int(v))
}

// Snapshot is the persisted subset of application state.
type Snapshot struct {
	Version                     SchemaVersion          `json:"version"`
	Transactions                []core.Transaction     `json:"transactions"`
	Categories                  []core.Category        `json:"categories"`
	Tasks                       []core.Task            `json:"tasks"`
	UserID                      string                 `json:"userId"`
	Notifications               []core.AppNotification `json:"notifications"`
	LastWeatherNotificationDate string                 `json:"lastWeatherNotificationDate"`
}

// NewSnapshot returns an empty snapshot seeded with the given categories.
func NewSnapshot(categories []core.Category) Snapshot {
	return Snapshot{
		Version:       CurrentVersion,
		Transactions:  []core.Transaction{},
		Categories:    slices.Clone(categories),
		Tasks:         []core.Task{},
		Notifications: []core.AppNotification{},
	}
}

// Partialize returns the part of s that is safe to write: transactions with
// a non-finite, negative or oversized amount are dropped. The version is
// stamped to CurrentVersion.
func Partialize(s Snapshot, maxAmount float64) Snapshot {
	out := s
	out.Version = CurrentVersion
	out.Transactions = make([]core.Transaction, 0, len(s.Transactions))
	for _, tx := range s.Transactions {
		if core.AmountIsSafe(tx.Amount, maxAmount) {
			out.Transactions = append(out.Transactions, tx)
		}
	}
	out.Tasks = nonNil(s.Tasks)
	out.Notifications = nonNil(s.Notifications)
	out.Categories = nonNil(s.Categories)
	return out
}

// LoadCategories reads a JSON array of categories from path.
func LoadCategories(path string) ([]core.Category, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	var cats []core.Category
	if err := json.Unmarshal(b, &cats); err != nil {
		return nil, fmt.Errorf("decode categories file: %w", err)
	}
	for i, c := range cats {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("category %d: %w", i, err)
		}
	}
	return cats, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
