package dao

import (
	"context"

	"gantry/internal/server/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventDao interface {
	// Append assigns the next seq for the task and persists the event
	// before returning. Sequences start at 1 and are gapless under any
	// concurrency: the owning task row is locked for the duration of
	// the transaction, so two appenders cannot read the same max(seq).
	Append(ctx context.Context, taskID uint, eventType model.EventType, payload string) (*model.Event, error)
	// List returns events with seq > afterSeq in ascending seq order.
	// afterSeq 0 returns everything.
	List(ctx context.Context, taskID uint, afterSeq int64) ([]*model.Event, error)
}

type eventDAO struct {
	db *gorm.DB
}

func NewEventDao() EventDao {
	return &eventDAO{db: db}
}

func NewEventDaoTx(tx *gorm.DB) EventDao {
	return &eventDAO{db: tx}
}

func (e *eventDAO) Append(ctx context.Context, taskID uint, eventType model.EventType, payload string) (*model.Event, error) {
	event := &model.Event{
		TaskID:  taskID,
		Type:    eventType,
		Payload: payload,
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task model.Task
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&task, taskID).Error; err != nil {
			return err
		}
		var lastSeq int64
		if err := tx.Model(&model.Event{}).
			Where("task_id = ?", taskID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&lastSeq).Error; err != nil {
			return err
		}
		event.Seq = lastSeq + 1
		return tx.Create(event).Error
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (e *eventDAO) List(ctx context.Context, taskID uint, afterSeq int64) ([]*model.Event, error) {
	var events []*model.Event
	err := e.db.WithContext(ctx).
		Where("task_id = ? AND seq > ?", taskID, afterSeq).
		Order("seq").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
