package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeRatesWarmup = "rates:warmup"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues are the asynq queues and their priorities.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// RatesWarmupPayload selects the day to prefetch. An empty Day means today.
type RatesWarmupPayload struct {
	Day string `json:"day,omitempty"`
}

// Date parses Day, falling back to now's UTC date.
func (p RatesWarmupPayload) Date(now time.Time) (time.Time, error) {
	if p.Day == "" {
		return now.UTC().Truncate(24 * time.Hour), nil
	}
	return time.Parse(time.DateOnly, p.Day)
}

func NewRatesWarmupTask(day time.Time) (*asynq.Task, error) {
	payload := RatesWarmupPayload{}
	if !day.IsZero() {
		payload.Day = day.UTC().Format(time.DateOnly)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeRatesWarmup, data, asynq.Queue(QueueLow), asynq.MaxRetry(3), asynq.Timeout(2*time.Minute)), nil
}
