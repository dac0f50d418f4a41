package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
)

// UserHandler serves profile self-service.
type UserHandler struct {
	db *gorm.DB
}

// NewUserHandler constructs the handler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

type profileResponse struct {
	ID                 uint      `json:"id"`
	Email              string    `json:"email"`
	Username           string    `json:"username"`
	Role               string    `json:"role"`
	VerificationStatus string    `json:"verification_status,omitempty"`
	FullName           string    `json:"full_name"`
	Bio                string    `json:"bio"`
	ImageURL           string    `json:"image_url"`
	CreatedAt          time.Time `json:"created_at"`
}

func newProfileResponse(user database.User) profileResponse {
	resp := profileResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
		FullName:  user.FullName,
		Bio:       user.Bio,
		ImageURL:  user.ImageURL,
		CreatedAt: user.CreatedAt,
	}
	if user.Role == database.RoleTrainer {
		resp.VerificationStatus = user.VerificationStatus
	}
	return resp
}

// GetMe returns the authenticated user's profile.
func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var user database.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Unauthorized(c)
			return
		}
		Internal(c, "failed to load profile")
		return
	}

	c.JSON(http.StatusOK, newProfileResponse(user))
}

type updateProfileRequest struct {
	FullName *string `json:"full_name" binding:"omitempty,max=128"`
	Bio      *string `json:"bio" binding:"omitempty,max=1024"`
	ImageURL *string `json:"image_url" binding:"omitempty,max=512"`
}

// UpdateMe applies self-service profile edits. Role and verification
// status are admin-only and never touched here.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	updates := map[string]any{}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.ImageURL != nil {
		updates["image_url"] = *req.ImageURL
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Model(&database.User{}).
		Where("id = ?", userID).
		Updates(updates).Error; err != nil {
		Internal(c, "failed to update profile")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		Internal(c, "failed to reload profile")
		return
	}

	c.JSON(http.StatusOK, newProfileResponse(user))
}
