package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
)

// EnrollmentHandler serves trainee enrollment operations.
type EnrollmentHandler struct {
	db *gorm.DB
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(db *gorm.DB) *EnrollmentHandler {
	return &EnrollmentHandler{db: db}
}

type enrollRequest struct {
	CourseID uint `json:"courseId" binding:"required"`
}

type enrollmentResponse struct {
	ID          uint       `json:"id"`
	CourseID    uint       `json:"courseId"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	EnrolledAt  time.Time  `json:"enrolledAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func newEnrollmentResponse(e database.Enrollment) enrollmentResponse {
	return enrollmentResponse{
		ID:          e.ID,
		CourseID:    e.CourseID,
		Status:      e.Status,
		Progress:    e.Progress,
		EnrolledAt:  e.EnrolledAt,
		CompletedAt: e.CompletedAt,
	}
}

// Enroll registers the trainee in a published course. A second attempt
// for the same course returns 409 without creating another row.
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	traineeID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()

	var course database.Course
	if err := h.db.WithContext(ctx).
		Where("id = ? AND status = ?", req.CourseID, database.CourseStatusPublished).
		First(&course).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "course not found")
			return
		}
		Internal(c, "failed to load course")
		return
	}

	var existing database.Enrollment
	err := h.db.WithContext(ctx).
		Where("trainee_id = ? AND course_id = ?", traineeID, course.ID).
		First(&existing).Error
	if err == nil {
		Conflict(c, "already enrolled in this course")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		Internal(c, "failed to check enrollment")
		return
	}

	enrollment := database.Enrollment{
		TraineeID:  traineeID,
		CourseID:   course.ID,
		Status:     database.EnrollmentStatusActive,
		Progress:   0,
		EnrolledAt: time.Now(),
	}
	if err := h.db.WithContext(ctx).Create(&enrollment).Error; err != nil {
		// The unique index on (trainee, course) backs the 409 even when
		// two enrollment requests race past the existence check.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			Conflict(c, "already enrolled in this course")
			return
		}
		Internal(c, "failed to enroll")
		return
	}

	c.JSON(http.StatusCreated, newEnrollmentResponse(enrollment))
}

// ListMyCourses lists the trainee's enrollments with course details.
func (h *EnrollmentHandler) ListMyCourses(c *gin.Context) {
	traineeID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var enrollments []database.Enrollment
	if err := h.db.WithContext(c.Request.Context()).
		Preload("Course").
		Where("trainee_id = ?", traineeID).
		Order("created_at DESC").
		Find(&enrollments).Error; err != nil {
		Internal(c, "failed to list enrollments")
		return
	}

	items := make([]gin.H, 0, len(enrollments))
	for _, e := range enrollments {
		items = append(items, gin.H{
			"enrollment": newEnrollmentResponse(e),
			"course": gin.H{
				"id":              e.Course.ID,
				"title":           e.Course.Title,
				"slug":            e.Course.Slug,
				"cover_image_url": e.Course.CoverImageURL,
				"status":          e.Course.Status,
			},
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
