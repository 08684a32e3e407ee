package models

import (
	"time"

	"gorm.io/gorm"
)

// Delivery records one report mail attempt.
// The server keeps them for the delivery history endpoint.
type Delivery struct {
	gorm.Model

	RunID    string `gorm:"index" json:"run_id"`
	Instance string `gorm:"index;not null" json:"instance"`
	Group    string `json:"group"`

	// ── Envelope ─────────────────────────────────────────────────────────────
	Recipients string `json:"recipients"`
	Subject    string `json:"subject"`
	Status     string `json:"status"` // OKAY or WARN

	// ── Outcome ──────────────────────────────────────────────────────────────
	Error  string    `json:"error,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// Delivered reports whether the mail was accepted by the relay.
func (d *Delivery) Delivered() bool { return d.Error == "" }
