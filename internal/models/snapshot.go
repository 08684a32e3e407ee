// Package models defines GORM data models for tsmreport.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vesaa/tsmreport/internal/parsing"
)

// Snapshot stores the raw console record sets of one collection run.
// Reports are rebuilt from it, so a cached run renders like a fresh one.
type Snapshot struct {
	gorm.Model

	RunID       string    `gorm:"uniqueIndex;not null" json:"run_id"`
	Instance    string    `gorm:"index;not null" json:"instance"`
	CollectedAt time.Time `gorm:"index" json:"collected_at"`

	// ── Record sets (JSON text columns) ──────────────────────────────────────
	Inventory []string            `gorm:"serializer:json" json:"inventory"`
	Jobs      map[string][]string `gorm:"serializer:json" json:"jobs"`
	Activity  map[string][]string `gorm:"serializer:json" json:"activity"`
	VMs       []string            `gorm:"serializer:json" json:"vms"`
}

// NewSnapshot wraps rs under a fresh run identifier.
func NewSnapshot(instance string, collectedAt time.Time, rs parsing.RecordSets) *Snapshot {
	return &Snapshot{
		RunID:       uuid.NewString(),
		Instance:    instance,
		CollectedAt: collectedAt,
		Inventory:   rs.Inventory,
		Jobs:        rs.Jobs,
		Activity:    rs.Activity,
		VMs:         rs.VMs,
	}
}

// RecordSets returns the stored console output.
func (s *Snapshot) RecordSets() parsing.RecordSets {
	return parsing.RecordSets{
		Inventory: s.Inventory,
		Jobs:      s.Jobs,
		Activity:  s.Activity,
		VMs:       s.VMs,
	}
}
