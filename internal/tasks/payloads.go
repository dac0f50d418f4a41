package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type constants keep queue producers and consumers aligned.
const (
	TypeCompletionRecorded = "completion:recorded"
)

// Completion event kinds carried in the payload.
const (
	EventSlideCompleted = "slide_completed"
	EventNoteWritten    = "note_written"
)

// CompletionRecordedPayload describes one qualifying learning activity.
// The worker updates the streak and re-evaluates achievement thresholds
// from it.
type CompletionRecordedPayload struct {
	TraineeID     uint   `json:"trainee_id"`
	CourseID      uint   `json:"course_id"`
	Event         string `json:"event"`
	CorrelationID string `json:"correlation_id"`
}

// NewCompletionRecordedTask builds an achievement/streak evaluation task.
func NewCompletionRecordedTask(traineeID, courseID uint, event, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(CompletionRecordedPayload{
		TraineeID:     traineeID,
		CourseID:      courseID,
		Event:         event,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCompletionRecorded, payload), nil
}
