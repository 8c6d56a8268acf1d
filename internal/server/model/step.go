package model

import (
	"gorm.io/gorm"
)

type StepKind string

const (
	StepAutomated StepKind = "automated"
	StepGated     StepKind = "gated"
)

type StepStatus string

const (
	StepPending      StepStatus = "pending"
	StepRunning      StepStatus = "running"
	StepAwaitingGate StepStatus = "awaiting_gate"
	StepApproved     StepStatus = "approved"
	StepRejected     StepStatus = "rejected"
	StepCompleted    StepStatus = "completed"
	StepFailed       StepStatus = "failed"
	StepInvalidated  StepStatus = "invalidated"
)

// Terminal reports whether the status can never transition again.
// Terminal steps are immune to invalidation by a revision.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepInvalidated
}

// Active reports whether the step currently holds the pipeline cursor.
func (s StepStatus) Active() bool {
	return s == StepRunning || s == StepAwaitingGate
}

// Step is one unit of a pipeline. OrderIndex is assigned at creation
// and never changes; a revision re-activates the original row instead
// of inserting a duplicate.
type Step struct {
	gorm.Model
	PipelineID uint       `gorm:"not null;uniqueIndex:idx_pipeline_order"`
	OrderIndex int        `gorm:"not null;uniqueIndex:idx_pipeline_order"`
	Name       string     `gorm:"type:varchar(255);not null"`
	Kind       StepKind   `gorm:"type:varchar(16);not null"`
	Command    string     `gorm:"type:text"`
	Status     StepStatus `gorm:"type:varchar(20);not null;index"`
	Feedback   string     `gorm:"type:text"`
}
