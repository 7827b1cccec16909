// Package domain defines the core persistence models for the application.
// This file holds the append-only webhook event ledger used for provider
// event idempotency.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent statuses.
const (
	EventStatusReceived  = "received"
	EventStatusProcessed = "processed"
	EventStatusFailed    = "failed"
)

// WebhookEvent records one inbound provider event, keyed by
// (source_id, external_event_id). The composite unique index makes
// re-delivery of the same provider event a no-op: the second insert fails
// with a uniqueness violation and the handler answers with the result IDs
// recorded on the first row instead of re-running the pipeline.
//
// Events without an external event ID are still recorded for audit but
// cannot participate in deduplication (ExternalEventID stays NULL, which the
// unique index treats as distinct).
type WebhookEvent struct {
	ID              string            `gorm:"type:char(36);primaryKey"`
	SourceID        string            `gorm:"type:char(36);not null;uniqueIndex:ux_source_event,priority:1"`
	OrganizationID  string            `gorm:"type:char(36);not null;index"`
	ExternalEventID *string           `gorm:"type:varchar(128);uniqueIndex:ux_source_event,priority:2"`
	Payload         datatypes.JSON    `gorm:"type:json"`
	Status          string            `gorm:"type:varchar(16);not null;default:'received'"`
	Error           string            `gorm:"type:text"`
	ContactID       string            `gorm:"type:char(36)"`
	DealID          string            `gorm:"type:char(36)"`
	SessionID       string            `gorm:"type:char(36)"`
	MessageID       string            `gorm:"type:char(36)"`
	CreatedAt       time.Time         `gorm:"autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (WebhookEvent) TableName() string { return "webhook_events" }
