package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
)

// CatalogHandler serves the public, published-only course catalog.
type CatalogHandler struct {
	db *gorm.DB
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{db: db}
}

type courseListItem struct {
	ID            uint      `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description"`
	CoverImageURL string    `json:"cover_image_url,omitempty"`
	TrainerName   string    `json:"trainer_name"`
	SlideCount    int64     `json:"slide_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListCourses lists published courses, newest first, paginated.
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	ctx := c.Request.Context()

	var total int64
	if err := h.db.WithContext(ctx).Model(&database.Course{}).
		Where("status = ?", database.CourseStatusPublished).
		Count(&total).Error; err != nil {
		Internal(c, "failed to count courses")
		return
	}

	var courses []database.Course
	if err := h.db.WithContext(ctx).
		Preload("Trainer").
		Where("status = ?", database.CourseStatusPublished).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&courses).Error; err != nil {
		Internal(c, "failed to list courses")
		return
	}

	courseIDs := make([]uint, 0, len(courses))
	for _, course := range courses {
		courseIDs = append(courseIDs, course.ID)
	}
	counts, err := h.slideCounts(ctx, courseIDs)
	if err != nil {
		Internal(c, "failed to count slides")
		return
	}

	items := make([]courseListItem, 0, len(courses))
	for _, course := range courses {
		items = append(items, newCourseListItem(course, counts[course.ID]))
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"pagination": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// GetCourse returns one published course by slug, including its slide
// outline (titles and positions, no file keys).
func (h *CatalogHandler) GetCourse(c *gin.Context) {
	slug := c.Param("slug")

	ctx := c.Request.Context()
	var course database.Course
	if err := h.db.WithContext(ctx).
		Preload("Trainer").
		Where("slug = ? AND status = ?", slug, database.CourseStatusPublished).
		First(&course).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "course not found")
			return
		}
		Internal(c, "failed to load course")
		return
	}

	var slides []database.Slide
	if err := h.db.WithContext(ctx).
		Where("course_id = ?", course.ID).
		Order("position ASC").
		Find(&slides).Error; err != nil {
		Internal(c, "failed to load slides")
		return
	}

	outline := make([]gin.H, 0, len(slides))
	for _, slide := range slides {
		outline = append(outline, gin.H{
			"id":       slide.ID,
			"title":    slide.Title,
			"position": slide.Position,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"course": newCourseListItem(course, int64(len(slides))),
		"slides": outline,
	})
}

// slideCounts returns slide totals for a page of courses in a single
// grouped query.
func (h *CatalogHandler) slideCounts(ctx context.Context, courseIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(courseIDs))
	if len(courseIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		CourseID uint
		Total    int64
	}
	if err := h.db.WithContext(ctx).Model(&database.Slide{}).
		Select("course_id", "COUNT(*) AS total").
		Where("course_id IN ?", courseIDs).
		Group("course_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.CourseID] = row.Total
	}
	return counts, nil
}

func newCourseListItem(course database.Course, slideCount int64) courseListItem {
	trainerName := course.Trainer.FullName
	if trainerName == "" {
		trainerName = course.Trainer.Username
	}

	return courseListItem{
		ID:            course.ID,
		Title:         course.Title,
		Slug:          course.Slug,
		Description:   course.Description,
		CoverImageURL: course.CoverImageURL,
		TrainerName:   trainerName,
		SlideCount:    slideCount,
		CreatedAt:     course.CreatedAt,
	}
}
