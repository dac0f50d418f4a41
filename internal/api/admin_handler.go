package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/stats"
)

// AdminHandler serves user administration, course moderation and the
// platform stats dashboards.
type AdminHandler struct {
	db      *gorm.DB
	stats   *stats.Service
	storage ObjectStore
	logger  *slog.Logger
}

func NewAdminHandler(db *gorm.DB, statsService *stats.Service, storageClient ObjectStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{db: db, stats: statsService, storage: storageClient, logger: logger}
}

type adminUserResponse struct {
	ID                 uint   `json:"id"`
	Email              string `json:"email"`
	Username           string `json:"username"`
	FullName           string `json:"full_name,omitempty"`
	Role               string `json:"role"`
	VerificationStatus string `json:"verification_status,omitempty"`
}

func newAdminUserResponse(user database.User) adminUserResponse {
	resp := adminUserResponse{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
		FullName: user.FullName,
		Role:     user.Role,
	}
	if user.Role == database.RoleTrainer {
		resp.VerificationStatus = user.VerificationStatus
	}
	return resp
}

// ListUsers pages through all accounts, optionally filtered by role.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, pageSize := paginationParams(c)

	query := h.db.WithContext(c.Request.Context()).Model(&database.User{})
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		Internal(c, "failed to count users")
		return
	}

	var users []database.User
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&users).Error; err != nil {
		Internal(c, "failed to list users")
		return
	}

	items := make([]adminUserResponse, 0, len(users))
	for _, user := range users {
		items = append(items, newAdminUserResponse(user))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":    items,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// DeleteUser removes an account and everything it owns in one
// transaction: enrollments, progress, notes, achievements and streaks,
// plus courses (with slides) for trainers.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	adminID, _ := userIDFromContext(c)
	if adminID == userID {
		Conflict(c, "cannot delete your own account")
		return
	}

	ctx := c.Request.Context()

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		Internal(c, "failed to load user")
		return
	}

	// Snapshot the trainer's slides first: after the transaction the
	// rows are gone, but the stored files still need a delete attempt.
	var orphanedSlides []database.Slide
	if user.Role == database.RoleTrainer {
		if err := h.db.WithContext(ctx).
			Joins("JOIN courses ON courses.id = slides.course_id AND courses.deleted_at IS NULL").
			Where("courses.trainer_id = ?", user.ID).
			Find(&orphanedSlides).Error; err != nil {
			Internal(c, "failed to load trainer slides")
			return
		}
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if user.Role == database.RoleTrainer {
			var courseIDs []uint
			if err := tx.Model(&database.Course{}).
				Where("trainer_id = ?", user.ID).
				Pluck("id", &courseIDs).Error; err != nil {
				return err
			}
			if len(courseIDs) > 0 {
				if err := tx.Where("course_id IN ?", courseIDs).Delete(&database.Slide{}).Error; err != nil {
					return err
				}
				if err := tx.Where("course_id IN ?", courseIDs).Delete(&database.Enrollment{}).Error; err != nil {
					return err
				}
				if err := tx.Where("trainer_id = ?", user.ID).Delete(&database.Course{}).Error; err != nil {
					return err
				}
			}
		}

		for _, del := range []error{
			tx.Where("trainee_id = ?", user.ID).Delete(&database.Enrollment{}).Error,
			tx.Where("trainee_id = ?", user.ID).Delete(&database.SlideProgress{}).Error,
			tx.Where("trainee_id = ?", user.ID).Delete(&database.Note{}).Error,
			tx.Where("user_id = ?", user.ID).Delete(&database.UserAchievement{}).Error,
			tx.Where("user_id = ?", user.ID).Delete(&database.LearningStreak{}).Error,
		} {
			if del != nil {
				return del
			}
		}
		return tx.Delete(&database.User{}, user.ID).Error
	})
	if err != nil {
		Internal(c, "failed to delete user")
		return
	}

	deleteSlideFiles(ctx, h.storage, orphanedSlides, h.logger)

	c.Status(http.StatusNoContent)
}

type patchRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=trainee trainer admin"`
}

// PatchUserRole changes an account's role. The change takes effect on
// the next token refresh.
func (h *AdminHandler) PatchUserRole(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req patchRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		Internal(c, "failed to load user")
		return
	}

	updates := map[string]any{"role": req.Role}
	if req.Role == database.RoleTrainer && user.Role != database.RoleTrainer {
		updates["verification_status"] = database.VerificationPending
	}
	if err := h.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		Internal(c, "failed to update role")
		return
	}
	if err := h.db.WithContext(ctx).First(&user, user.ID).Error; err != nil {
		Internal(c, "failed to reload user")
		return
	}

	c.JSON(http.StatusOK, newAdminUserResponse(user))
}

type patchVerificationRequest struct {
	Status string `json:"status" binding:"required,oneof=pending approved rejected"`
}

// PatchTrainerVerification approves or rejects a trainer account.
func (h *AdminHandler) PatchTrainerVerification(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req patchVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		Internal(c, "failed to load user")
		return
	}
	if user.Role != database.RoleTrainer {
		Conflict(c, "user is not a trainer")
		return
	}

	if err := h.db.WithContext(ctx).Model(&user).
		Update("verification_status", req.Status).Error; err != nil {
		Internal(c, "failed to update verification")
		return
	}
	user.VerificationStatus = req.Status

	c.JSON(http.StatusOK, newAdminUserResponse(user))
}

type adminCourseResponse struct {
	ID        uint   `json:"id"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	Status    string `json:"status"`
	TrainerID uint   `json:"trainerId"`
}

// ListCourses pages through courses in any status, optionally filtered.
func (h *AdminHandler) ListCourses(c *gin.Context) {
	page, pageSize := paginationParams(c)

	query := h.db.WithContext(c.Request.Context()).Model(&database.Course{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		Internal(c, "failed to count courses")
		return
	}

	var courses []database.Course
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&courses).Error; err != nil {
		Internal(c, "failed to list courses")
		return
	}

	items := make([]adminCourseResponse, 0, len(courses))
	for _, course := range courses {
		items = append(items, adminCourseResponse{
			ID:        course.ID,
			Title:     course.Title,
			Slug:      course.Slug,
			Status:    course.Status,
			TrainerID: course.TrainerID,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"items":    items,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

type patchCourseStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=draft published archived"`
}

// PatchCourseStatus moves a course between moderation states. Admins
// may publish, archive, or send a course back to draft; review entry
// stays with the trainer's submit.
func (h *AdminHandler) PatchCourseStatus(c *gin.Context) {
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req patchCourseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	var course database.Course
	if err := h.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "course not found")
			return
		}
		Internal(c, "failed to load course")
		return
	}

	if err := h.db.WithContext(ctx).Model(&course).
		Update("status", req.Status).Error; err != nil {
		Internal(c, "failed to update course status")
		return
	}
	course.Status = req.Status

	c.JSON(http.StatusOK, adminCourseResponse{
		ID:        course.ID,
		Title:     course.Title,
		Slug:      course.Slug,
		Status:    course.Status,
		TrainerID: course.TrainerID,
	})
}

// GetOverview returns the platform-wide counters.
func (h *AdminHandler) GetOverview(c *gin.Context) {
	overview, err := h.stats.AdminOverview(c.Request.Context())
	if err != nil {
		Internal(c, "failed to compute overview")
		return
	}
	c.JSON(http.StatusOK, overview)
}

// GetGrowth returns time-bucketed signup and enrollment counts.
func (h *AdminHandler) GetGrowth(c *gin.Context) {
	period := c.DefaultQuery("period", "day")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	buckets, err := h.stats.Growth(c.Request.Context(), period, limit)
	if err != nil {
		if errors.Is(err, stats.ErrInvalidPeriod) {
			BadRequest(c, err.Error())
			return
		}
		Internal(c, "failed to compute growth")
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": period, "buckets": buckets})
}

// GetEngagement returns the progress distribution and activity ratio.
func (h *AdminHandler) GetEngagement(c *gin.Context) {
	engagement, err := h.stats.AdminEngagement(c.Request.Context())
	if err != nil {
		Internal(c, "failed to compute engagement")
		return
	}
	c.JSON(http.StatusOK, engagement)
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func paginationParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
