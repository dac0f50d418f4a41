package progress

import (
	"context"
	"errors"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
)

// Sentinel errors mapped to HTTP statuses at the handler edge.
var (
	ErrSlideNotFound = errors.New("slide not found")
	ErrNotEnrolled   = errors.New("trainee is not enrolled in the slide's course")
)

// CourseProgress is the recomputed state of one enrollment.
type CourseProgress struct {
	CourseID        uint   `json:"courseId"`
	TotalSlides     int64  `json:"totalSlides"`
	CompletedSlides int64  `json:"completedSlides"`
	Progress        int    `json:"progress"`
	Status          string `json:"status"`
}

// Service keeps enrollment progress and status consistent with the
// underlying slide-progress rows. Progress is always recomputed from
// counts, never incrementally adjusted.
type Service struct {
	db *gorm.DB
}

// NewService constructs the aggregator.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RecordSlideCompletion upserts the slide-progress row for the trainee
// and recomputes the enrollment's progress and status, all in one
// transaction holding a row lock on the enrollment. Two concurrent
// completion requests for the same enrollment therefore serialize
// instead of losing an update.
func (s *Service) RecordSlideCompletion(ctx context.Context, traineeID, slideID uint, completed bool) (*database.SlideProgress, *CourseProgress, error) {
	var slide database.Slide
	if err := s.db.WithContext(ctx).First(&slide, slideID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSlideNotFound
		}
		return nil, nil, err
	}

	var (
		slideProgress database.SlideProgress
		courseState   *CourseProgress
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollmentQuery := tx
		if tx.Dialector.Name() == "postgres" {
			enrollmentQuery = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var enrollment database.Enrollment
		if err := enrollmentQuery.
			Where("trainee_id = ? AND course_id = ?", traineeID, slide.CourseID).
			First(&enrollment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotEnrolled
			}
			return err
		}

		now := time.Now()
		var completedAt *time.Time
		if completed {
			completedAt = &now
		}

		slideProgress = database.SlideProgress{
			TraineeID:   traineeID,
			SlideID:     slideID,
			Completed:   completed,
			CompletedAt: completedAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trainee_id"}, {Name: "slide_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"completed", "completed_at", "updated_at"}),
		}).Create(&slideProgress).Error; err != nil {
			return err
		}

		state, err := recompute(tx, traineeID, slide.CourseID)
		if err != nil {
			return err
		}

		updates := map[string]any{
			"progress": state.Progress,
			"status":   state.Status,
		}
		if state.Status == database.EnrollmentStatusCompleted {
			if enrollment.CompletedAt == nil {
				updates["completed_at"] = now
			}
		} else {
			updates["completed_at"] = nil
		}
		if err := tx.Model(&database.Enrollment{}).
			Where("id = ?", enrollment.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		courseState = state
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// Reload so the caller sees the row as persisted (the upsert may
	// have kept the original primary key).
	if err := s.db.WithContext(ctx).
		Where("trainee_id = ? AND slide_id = ?", traineeID, slideID).
		First(&slideProgress).Error; err != nil {
		return nil, nil, err
	}

	return &slideProgress, courseState, nil
}

// CourseProgressFor recomputes the current progress of a trainee's
// enrollment without mutating anything.
func (s *Service) CourseProgressFor(ctx context.Context, traineeID, courseID uint) (*CourseProgress, error) {
	var enrollment database.Enrollment
	if err := s.db.WithContext(ctx).
		Where("trainee_id = ? AND course_id = ?", traineeID, courseID).
		First(&enrollment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, err
	}
	return recompute(s.db.WithContext(ctx), traineeID, courseID)
}

// recompute derives progress from slide counts. A course with zero
// slides has progress 0; completed status holds iff progress is 100.
func recompute(tx *gorm.DB, traineeID, courseID uint) (*CourseProgress, error) {
	var total int64
	if err := tx.Model(&database.Slide{}).
		Where("course_id = ?", courseID).
		Count(&total).Error; err != nil {
		return nil, err
	}

	var completedCount int64
	if err := tx.Model(&database.SlideProgress{}).
		Joins("JOIN slides ON slides.id = slide_progresses.slide_id").
		Where("slide_progresses.trainee_id = ? AND slides.course_id = ? AND slide_progresses.completed = ? AND slides.deleted_at IS NULL", traineeID, courseID, true).
		Count(&completedCount).Error; err != nil {
		return nil, err
	}

	percent := Percent(completedCount, total)
	status := database.EnrollmentStatusActive
	if percent == 100 {
		status = database.EnrollmentStatusCompleted
	}

	return &CourseProgress{
		CourseID:        courseID,
		TotalSlides:     total,
		CompletedSlides: completedCount,
		Progress:        percent,
		Status:          status,
	}, nil
}

// Percent rounds 100*completed/total to the nearest integer, defining
// the zero-slide case as 0.
func Percent(completed, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}
