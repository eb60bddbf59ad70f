package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindInvitationEmail      Kind = "invitation_email"
	KindGraphMetadataRefresh Kind = "graph_metadata_refresh"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Task is a side effect recorded in the same transaction as the state change
// that caused it and delivered later by the dispatcher.
type Task struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	Kind          Kind              `gorm:"type:varchar(64);not null" json:"kind"`
	InvitationID  *snowflake.ID     `gorm:"index" json:"invitationId,omitempty"`
	AggregateKey  string            `gorm:"not null;index" json:"aggregateKey"`
	Payload       datatypes.JSONMap `json:"payload,omitempty"`
	Status        Status            `gorm:"type:varchar(16);not null;index:ix_outbox_tasks_due,priority:1" json:"status"`
	Attempts      int               `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts   int               `gorm:"not null" json:"maxAttempts"`
	NextAttemptAt time.Time         `gorm:"not null;index:ix_outbox_tasks_due,priority:2" json:"nextAttemptAt"`
	LockedUntil   *time.Time        `json:"lockedUntil,omitempty"`
	LastError     string            `gorm:"type:text;not null;default:''" json:"lastError,omitempty"`
	CorrelationID string            `gorm:"type:varchar(64);not null;default:''" json:"correlationId"`
	CreatedAt     time.Time         `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updatedAt"`
}

func (Task) TableName() string { return "outbox_tasks" }

// PayloadString reads a string field from the payload.
func (t Task) PayloadString(key string) string {
	if t.Payload == nil {
		return ""
	}
	value, _ := t.Payload[key].(string)
	return value
}
