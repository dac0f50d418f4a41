package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/api/middleware"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/errcode"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/progress"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/tasks"
)

// TaskEnqueuer is the slice of asynq.Client the handler needs; tests
// substitute a fake.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ProgressHandler serves trainee slide-completion updates and reads.
type ProgressHandler struct {
	db          *gorm.DB
	aggregator  *progress.Service
	asynqClient TaskEnqueuer
}

// NewProgressHandler constructs the handler.
func NewProgressHandler(db *gorm.DB, aggregator *progress.Service, asynqClient TaskEnqueuer) *ProgressHandler {
	return &ProgressHandler{
		db:          db,
		aggregator:  aggregator,
		asynqClient: asynqClient,
	}
}

type updateSlideProgressRequest struct {
	Completed *bool `json:"completed" binding:"required"`
}

type slideProgressResponse struct {
	SlideID     uint       `json:"slideId"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// UpdateSlideProgress marks a slide complete or incomplete and returns
// the recomputed course progress alongside the slide-progress row.
func (h *ProgressHandler) UpdateSlideProgress(c *gin.Context) {
	var req updateSlideProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	traineeID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	slideID, err := strconv.ParseUint(c.Param("slideID"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid slide id")
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	slideProgress, courseProgress, err := h.aggregator.RecordSlideCompletion(ctx, traineeID, uint(slideID), *req.Completed)
	if err != nil {
		switch {
		case errors.Is(err, progress.ErrSlideNotFound):
			NotFound(c, "slide not found")
		case errors.Is(err, progress.ErrNotEnrolled):
			Error(c, http.StatusForbidden, errcode.NotEnrolled, "not enrolled in this course")
		default:
			logger.Error("record slide completion failed", slog.Any("error", err))
			Internal(c, "failed to update progress")
		}
		return
	}

	// Completion feeds the achievement/streak evaluation through the
	// queue after the primary transaction committed. Enqueue failure is
	// logged and never fails the request.
	if *req.Completed && h.asynqClient != nil {
		correlationID := middleware.GetCorrelationID(c)
		task, err := tasks.NewCompletionRecordedTask(traineeID, courseProgress.CourseID, tasks.EventSlideCompleted, correlationID)
		if err != nil {
			logger.Error("create completion task failed", slog.Any("error", err))
		} else if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5)); err != nil {
			logger.Error("enqueue completion task failed", slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"slideProgress": slideProgressResponse{
			SlideID:     slideProgress.SlideID,
			Completed:   slideProgress.Completed,
			CompletedAt: slideProgress.CompletedAt,
		},
		"courseProgress": courseProgress,
	})
}

// GetCourseProgress returns the per-slide completion map for one of the
// trainee's enrollments.
func (h *ProgressHandler) GetCourseProgress(c *gin.Context) {
	traineeID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	courseID, err := strconv.ParseUint(c.Param("courseID"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid course id")
		return
	}

	ctx := c.Request.Context()

	courseProgress, err := h.aggregator.CourseProgressFor(ctx, traineeID, uint(courseID))
	if err != nil {
		if errors.Is(err, progress.ErrNotEnrolled) {
			Error(c, http.StatusForbidden, errcode.NotEnrolled, "not enrolled in this course")
			return
		}
		Internal(c, "failed to compute progress")
		return
	}

	var slides []database.Slide
	if err := h.db.WithContext(ctx).
		Where("course_id = ?", uint(courseID)).
		Order("position ASC").
		Find(&slides).Error; err != nil {
		Internal(c, "failed to load slides")
		return
	}

	var rows []database.SlideProgress
	if err := h.db.WithContext(ctx).
		Joins("JOIN slides ON slides.id = slide_progresses.slide_id").
		Where("slide_progresses.trainee_id = ? AND slides.course_id = ?", traineeID, uint(courseID)).
		Find(&rows).Error; err != nil {
		Internal(c, "failed to load slide progress")
		return
	}
	completed := make(map[uint]database.SlideProgress, len(rows))
	for _, row := range rows {
		completed[row.SlideID] = row
	}

	items := make([]gin.H, 0, len(slides))
	for _, slide := range slides {
		item := gin.H{
			"slideId":   slide.ID,
			"title":     slide.Title,
			"position":  slide.Position,
			"completed": false,
		}
		if row, ok := completed[slide.ID]; ok {
			item["completed"] = row.Completed
			if row.CompletedAt != nil {
				item["completedAt"] = row.CompletedAt
			}
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"courseProgress": courseProgress,
		"slides":         items,
	})
}
