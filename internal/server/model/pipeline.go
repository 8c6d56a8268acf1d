package model

import (
	"gorm.io/gorm"
)

type PipelineStatus string

const (
	PipelineRunning      PipelineStatus = "running"
	PipelineAwaitingGate PipelineStatus = "awaiting_gate"
	PipelineCompleted    PipelineStatus = "completed"
	PipelineFailed       PipelineStatus = "failed"
	PipelineCancelled    PipelineStatus = "cancelled"
)

// Active reports whether the pipeline still owns an active step. An
// active pipeline cannot be deleted.
func (s PipelineStatus) Active() bool {
	return s == PipelineRunning || s == PipelineAwaitingGate
}

// Pipeline is one workflow instance launched against a remote
// development environment. Cursor is the order index of the currently
// active step; it only moves forward through advance or backward
// through a revision.
type Pipeline struct {
	gorm.Model
	UUID      string         `gorm:"type:varchar(36);not null;uniqueIndex"`
	Name      string         `gorm:"type:varchar(255);not null"`
	EnvHandle string         `gorm:"type:varchar(255);not null"`
	Status    PipelineStatus `gorm:"type:varchar(20);not null;index"`
	Cursor    int            `gorm:"not null"`
}
