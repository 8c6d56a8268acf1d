package model

import (
	"gorm.io/gorm"
)

type EventType string

const (
	EventOutputChunk  EventType = "output-chunk"
	EventStatusChange EventType = "status-change"
	EventError        EventType = "error"
)

// Event is one immutable progress record for a task. Seq starts at 1
// per task, is gapless and strictly increasing; it is assigned at
// append time under a lock on the owning task row. CreatedAt is the
// event timestamp. Rows are never updated or deleted except by a
// pipeline cascade delete.
type Event struct {
	gorm.Model
	TaskID  uint      `gorm:"not null;uniqueIndex:idx_task_seq"`
	Seq     int64     `gorm:"not null;uniqueIndex:idx_task_seq"`
	Type    EventType `gorm:"type:varchar(32);not null"`
	Payload string    `gorm:"type:text"`
}
