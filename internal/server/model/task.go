package model

import (
	"time"

	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskCancelled
}

// Task is one asynchronous remote execution backing an automated step.
// A step owns at most one non-terminal task at a time.
type Task struct {
	gorm.Model
	StepID     uint       `gorm:"not null;index"`
	Status     TaskStatus `gorm:"type:varchar(16);not null;index"`
	StartedAt  *time.Time
	FinishedAt *time.Time
}
