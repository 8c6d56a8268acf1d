package handler

import (
	"strconv"

	"gantry/internal/common"
	"gantry/internal/server/dao"
	"gantry/pkg/api"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListTaskEvents returns a task's events with seq > after in ascending
// order. Pollers pass their last-seen seq and receive only the delta.
func ListTaskEvents(c *gin.Context) {
	taskID, err := strconv.Atoi(c.Param("taskId"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.Validation))
		return
	}

	var afterSeq int64
	if after := c.Query("after"); after != "" {
		afterSeq, err = strconv.ParseInt(after, 10, 64)
		if err != nil {
			common.Error(c, common.NewErrNoMsg(common.Validation, "invalid after param %q", after))
			return
		}
	}

	if _, err := dao.NewTaskDao().GetByID(c, uint(taskID)); err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Error(c, common.NewErrNo(common.NotFound))
		} else {
			common.Error(c, err)
		}
		return
	}

	events, err := dao.NewEventDao().List(c, uint(taskID), afterSeq)
	if err != nil {
		common.Error(c, err)
		return
	}

	list := api.EventList{TaskID: uint(taskID), Events: make([]api.EventDetail, 0, len(events))}
	for _, event := range events {
		list.Events = append(list.Events, api.EventDetail{
			Seq:       event.Seq,
			Type:      string(event.Type),
			Payload:   event.Payload,
			Timestamp: event.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	common.Success(c, list)
}

// CancelTask requests best-effort cancellation of an in-flight task.
func CancelTask(c *gin.Context) {
	taskID, err := strconv.Atoi(c.Param("taskId"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.Validation))
		return
	}
	if err := exec.Cancel(c, uint(taskID)); err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, nil)
}
