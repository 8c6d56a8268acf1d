package api

type PipelineBrief struct {
	ID        uint   `json:"id"`
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	EnvHandle string `json:"env_handle"`
	Status    string `json:"status"`
	Cursor    int    `json:"cursor"`
}

type StepDetail struct {
	ID         uint   `json:"id"`
	OrderIndex int    `json:"order_index"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Feedback   string `json:"feedback,omitempty"`
	TaskID     uint   `json:"task_id,omitempty"`
}

type PipelineDetail struct {
	PipelineBrief
	Steps []StepDetail `json:"steps"`
}

type EventDetail struct {
	Seq       int64  `json:"seq"`
	Type      string `json:"type"`
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
}

type EventList struct {
	TaskID uint          `json:"task_id"`
	Events []EventDetail `json:"events"`
}

// DashboardSummary is the read-only aggregate the dashboard polls.
type DashboardSummary struct {
	Pipelines    []PipelineBrief `json:"pipelines"`
	StatusCounts map[string]int  `json:"status_counts"`
}
