package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/api/middleware"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/stats"
)

var (
	errInvalidCourseID = errors.New("invalid course id")
	errInvalidSlideID  = errors.New("invalid slide id")
)

// TrainerHandler serves trainer-owned course and slide management.
type TrainerHandler struct {
	db      *gorm.DB
	storage ObjectStore
	stats   *stats.Service
}

// NewTrainerHandler constructs the handler.
func NewTrainerHandler(db *gorm.DB, storageClient ObjectStore, statsService *stats.Service) *TrainerHandler {
	return &TrainerHandler{
		db:      db,
		storage: storageClient,
		stats:   statsService,
	}
}

type createCourseRequest struct {
	Title         string `json:"title" binding:"required,max=255"`
	Description   string `json:"description" binding:"max=2048"`
	CoverImageURL string `json:"cover_image_url" binding:"max=512"`
}

type updateCourseRequest struct {
	Title         *string `json:"title" binding:"omitempty,max=255"`
	Description   *string `json:"description" binding:"omitempty,max=2048"`
	CoverImageURL *string `json:"cover_image_url" binding:"omitempty,max=512"`
}

type courseResponse struct {
	ID            uint   `json:"id"`
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	Description   string `json:"description"`
	CoverImageURL string `json:"cover_image_url,omitempty"`
	Status        string `json:"status"`
}

func newCourseResponse(course database.Course) courseResponse {
	return courseResponse{
		ID:            course.ID,
		Title:         course.Title,
		Slug:          course.Slug,
		Description:   course.Description,
		CoverImageURL: course.CoverImageURL,
		Status:        course.Status,
	}
}

// requireApprovedTrainer loads the trainer and rejects mutations until
// an admin approved the account.
func (h *TrainerHandler) requireApprovedTrainer(c *gin.Context) (uint, bool) {
	trainerID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return 0, false
	}

	var trainer database.User
	if err := h.db.WithContext(c.Request.Context()).First(&trainer, trainerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Unauthorized(c)
			return 0, false
		}
		Internal(c, "failed to load trainer")
		return 0, false
	}

	if trainer.VerificationStatus != database.VerificationApproved {
		Forbidden(c, "trainer account is not verified")
		return 0, false
	}
	return trainerID, true
}

// CreateCourse creates a draft course with a generated unique slug.
func (h *TrainerHandler) CreateCourse(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	trainerID, ok := h.requireApprovedTrainer(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	slug, err := h.uniqueSlug(ctx, req.Title)
	if err != nil {
		Internal(c, "failed to derive slug")
		return
	}

	course := database.Course{
		Title:         req.Title,
		Slug:          slug,
		Description:   req.Description,
		CoverImageURL: req.CoverImageURL,
		Status:        database.CourseStatusDraft,
		TrainerID:     trainerID,
	}
	if err := h.db.WithContext(ctx).Create(&course).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			Conflict(c, "course slug already taken")
			return
		}
		Internal(c, "failed to create course")
		return
	}

	c.JSON(http.StatusCreated, newCourseResponse(course))
}

// ListCourses lists the trainer's own courses in any status.
func (h *TrainerHandler) ListCourses(c *gin.Context) {
	trainerID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var courses []database.Course
	if err := h.db.WithContext(c.Request.Context()).
		Where("trainer_id = ?", trainerID).
		Order("created_at DESC").
		Find(&courses).Error; err != nil {
		Internal(c, "failed to list courses")
		return
	}

	items := make([]courseResponse, 0, len(courses))
	for _, course := range courses {
		items = append(items, newCourseResponse(course))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetCourse returns one of the trainer's courses with its slides.
func (h *TrainerHandler) GetCourse(c *gin.Context) {
	trainerID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	course, err := h.getCourseForTrainer(c.Request.Context(), c.Param("id"), trainerID)
	if err != nil {
		h.replyCourseError(c, err)
		return
	}

	var slides []database.Slide
	if err := h.db.WithContext(c.Request.Context()).
		Where("course_id = ?", course.ID).
		Order("position ASC").
		Find(&slides).Error; err != nil {
		Internal(c, "failed to load slides")
		return
	}

	items := make([]slideResponse, 0, len(slides))
	for _, slide := range slides {
		items = append(items, newSlideResponse(slide))
	}

	c.JSON(http.StatusOK, gin.H{
		"course": newCourseResponse(*course),
		"slides": items,
	})
}

// UpdateCourse edits course metadata. Status never changes here.
func (h *TrainerHandler) UpdateCourse(c *gin.Context) {
	var req updateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	trainerID, ok := h.requireApprovedTrainer(c)
	if !ok {
		return
	}

	course, err := h.getCourseForTrainer(c.Request.Context(), c.Param("id"), trainerID)
	if err != nil {
		h.replyCourseError(c, err)
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.CoverImageURL != nil {
		updates["cover_image_url"] = *req.CoverImageURL
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Model(course).Updates(updates).Error; err != nil {
		Internal(c, "failed to update course")
		return
	}
	if err := h.db.WithContext(ctx).First(course, course.ID).Error; err != nil {
		Internal(c, "failed to reload course")
		return
	}

	c.JSON(http.StatusOK, newCourseResponse(*course))
}

// SubmitCourse moves a draft course into review. Any other source
// status is rejected; transitions are never automatic.
func (h *TrainerHandler) SubmitCourse(c *gin.Context) {
	trainerID, ok := h.requireApprovedTrainer(c)
	if !ok {
		return
	}

	course, err := h.getCourseForTrainer(c.Request.Context(), c.Param("id"), trainerID)
	if err != nil {
		h.replyCourseError(c, err)
		return
	}

	if course.Status != database.CourseStatusDraft {
		Conflict(c, fmt.Sprintf("course in status %q cannot be submitted", course.Status))
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Model(course).
		Update("status", database.CourseStatusUnderReview).Error; err != nil {
		Internal(c, "failed to submit course")
		return
	}
	course.Status = database.CourseStatusUnderReview

	c.JSON(http.StatusOK, newCourseResponse(*course))
}

// DeleteCourse removes the course and its slides, then best-effort
// deletes the stored slide files. Storage failures are logged and never
// roll back the database delete.
func (h *TrainerHandler) DeleteCourse(c *gin.Context) {
	trainerID, ok := h.requireApprovedTrainer(c)
	if !ok {
		return
	}

	course, err := h.getCourseForTrainer(c.Request.Context(), c.Param("id"), trainerID)
	if err != nil {
		h.replyCourseError(c, err)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var slides []database.Slide
	if err := h.db.WithContext(ctx).Where("course_id = ?", course.ID).Find(&slides).Error; err != nil {
		Internal(c, "failed to load slides")
		return
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("course_id = ?", course.ID).Delete(&database.Slide{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_id = ?", course.ID).Delete(&database.Enrollment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&database.Course{}, course.ID).Error
	})
	if err != nil {
		Internal(c, "failed to delete course")
		return
	}

	deleteSlideFiles(ctx, h.storage, slides, logger)

	c.Status(http.StatusNoContent)
}

type createSlideRequest struct {
	Title            string `json:"title" binding:"required,max=255"`
	Description      string `json:"description" binding:"max=1024"`
	FileURL          string `json:"file_url" binding:"required,max=512"`
	FileType         string `json:"file_type" binding:"max=64"`
	OriginalFilename string `json:"original_filename" binding:"max=255"`
}

type updateSlideRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=255"`
	Description *string `json:"description" binding:"omitempty,max=1024"`
}

type slideResponse struct {
	ID       uint   `json:"id"`
	CourseID uint   `json:"courseId"`
	Title    string `json:"title"`
	Position int    `json:"position"`
	FileURL  string `json:"file_url"`
	FileType string `json:"file_type,omitempty"`
}

func newSlideResponse(slide database.Slide) slideResponse {
	return slideResponse{
		ID:       slide.ID,
		CourseID: slide.CourseID,
		Title:    slide.Title,
		Position: slide.Position,
		FileURL:  slide.FileURL,
		FileType: slide.FileType,
	}
}

// CreateSlide appends a slide to the course. The file must already be
// uploaded; FileURL carries its object key.
func (h *TrainerHandler) CreateSlide(c *gin.Context) {
	var req createSlideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	trainerID, ok := h.requireApprovedTrainer(c)
	if !ok {
		return
	}

	course, err := h.getCourseForTrainer(c.Request.Context(), c.Param("id"), trainerID)
	if err != nil {
		h.replyCourseError(c, err)
		return
	}

	ctx := c.Request.Context()

	var maxPosition int
	row := h.db.WithContext(ctx).Model(&database.Slide{}).
		Where("course_id = ?", course.ID).
		Select("COALESCE(MAX(position), 0)").
		Row()
	if err := row.Scan(&maxPosition); err != nil {
		Internal(c, "failed to compute slide position")
		return
	}

	slide := database.Slide{
		CourseID:         course.ID,
		Title:            req.Title,
		Description:      req.Description,
		Position:         maxPosition + 1,
		FileURL:          req.FileURL,
		FileType:         req.FileType,
		OriginalFilename: req.OriginalFilename,
	}
	if err := h.db.WithContext(ctx).Create(&slide).Error; err != nil {
		Internal(c, "failed to create slide")
		return
	}

	c.JSON(http.StatusCreated, newSlideResponse(slide))
}

// UpdateSlide edits slide metadata.
func (h *TrainerHandler) UpdateSlide(c *gin.Context) {
	var req updateSlideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	trainerID, ok := h.requireApprovedTrainer(c)
	if !ok {
		return
	}

	slide, err := h.getSlideForTrainer(c.Request.Context(), c.Param("id"), trainerID)
	if err != nil {
		h.replySlideError(c, err)
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Model(slide).Updates(updates).Error; err != nil {
		Internal(c, "failed to update slide")
		return
	}

	c.JSON(http.StatusOK, newSlideResponse(*slide))
}

// DeleteSlide removes the slide row, then best-effort deletes its file.
func (h *TrainerHandler) DeleteSlide(c *gin.Context) {
	trainerID, ok := h.requireApprovedTrainer(c)
	if !ok {
		return
	}

	slide, err := h.getSlideForTrainer(c.Request.Context(), c.Param("id"), trainerID)
	if err != nil {
		h.replySlideError(c, err)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	if err := h.db.WithContext(ctx).Delete(&database.Slide{}, slide.ID).Error; err != nil {
		Internal(c, "failed to delete slide")
		return
	}

	deleteSlideFiles(ctx, h.storage, []database.Slide{*slide}, logger)

	c.Status(http.StatusNoContent)
}

type reorderSlidesRequest struct {
	SlideIDs []uint `json:"slideIds" binding:"required,min=1"`
}

// ReorderSlides rewrites slide positions from the given order. The list
// must contain exactly the course's slides.
func (h *TrainerHandler) ReorderSlides(c *gin.Context) {
	var req reorderSlidesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	trainerID, ok := h.requireApprovedTrainer(c)
	if !ok {
		return
	}

	course, err := h.getCourseForTrainer(c.Request.Context(), c.Param("id"), trainerID)
	if err != nil {
		h.replyCourseError(c, err)
		return
	}

	ctx := c.Request.Context()

	var existingIDs []uint
	if err := h.db.WithContext(ctx).Model(&database.Slide{}).
		Where("course_id = ?", course.ID).
		Pluck("id", &existingIDs).Error; err != nil {
		Internal(c, "failed to load slides")
		return
	}

	if len(existingIDs) != len(req.SlideIDs) {
		BadRequest(c, "slide list does not match course slides")
		return
	}
	existing := make(map[uint]bool, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = true
	}
	seen := make(map[uint]bool, len(req.SlideIDs))
	for _, id := range req.SlideIDs {
		if !existing[id] || seen[id] {
			BadRequest(c, "slide list does not match course slides")
			return
		}
		seen[id] = true
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range req.SlideIDs {
			if err := tx.Model(&database.Slide{}).
				Where("id = ?", id).
				Update("position", i+1).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		Internal(c, "failed to reorder slides")
		return
	}

	c.Status(http.StatusOK)
}

// GetStats returns the trainer's engagement dashboard.
func (h *TrainerHandler) GetStats(c *gin.Context) {
	trainerID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	overview, err := h.stats.TrainerStats(c.Request.Context(), trainerID)
	if err != nil {
		Internal(c, "failed to compute stats")
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *TrainerHandler) getCourseForTrainer(ctx context.Context, idParam string, trainerID uint) (*database.Course, error) {
	courseID, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		return nil, errInvalidCourseID
	}

	var course database.Course
	if err := h.db.WithContext(ctx).
		Where("id = ? AND trainer_id = ?", uint(courseID), trainerID).
		First(&course).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (h *TrainerHandler) getSlideForTrainer(ctx context.Context, idParam string, trainerID uint) (*database.Slide, error) {
	slideID, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		return nil, errInvalidSlideID
	}

	var slide database.Slide
	if err := h.db.WithContext(ctx).
		Joins("JOIN courses ON courses.id = slides.course_id").
		Where("slides.id = ? AND courses.trainer_id = ? AND courses.deleted_at IS NULL", uint(slideID), trainerID).
		First(&slide).Error; err != nil {
		return nil, err
	}
	return &slide, nil
}

func (h *TrainerHandler) replyCourseError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errInvalidCourseID):
		BadRequest(c, "invalid course id")
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "course not found")
	default:
		Internal(c, "failed to query course")
	}
}

func (h *TrainerHandler) replySlideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errInvalidSlideID):
		BadRequest(c, "invalid slide id")
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "slide not found")
	default:
		Internal(c, "failed to query slide")
	}
}

// deleteSlideFiles removes stored slide files best-effort; a failed
// delete is logged and otherwise ignored.
func deleteSlideFiles(ctx context.Context, store ObjectStore, slides []database.Slide, logger *slog.Logger) {
	if store == nil {
		return
	}
	for _, slide := range slides {
		key := strings.TrimSpace(slide.FileURL)
		if key == "" {
			continue
		}
		if err := store.DeleteObject(ctx, key); err != nil {
			logger.Error("delete slide file failed",
				slog.Uint64("slide_id", uint64(slide.ID)),
				slog.String("object_key", key),
				slog.Any("error", err),
			)
		}
	}
}

func (h *TrainerHandler) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := slugify(title)
	if base == "" {
		base = "course"
	}

	slug := base
	for attempt := 0; attempt < 3; attempt++ {
		// Soft-deleted courses still hold their slot in the unique
		// index, so the availability check must see them too.
		var count int64
		if err := h.db.WithContext(ctx).Unscoped().Model(&database.Course{}).
			Where("slug = ?", slug).
			Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
	}
	return slug, nil
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r) && r < 128:
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 200 {
		out = out[:200]
	}
	return out
}
