package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
)

// AchievementHandler serves a trainee's earned badges and streak.
// Minting happens in the worker; these endpoints only read.
type AchievementHandler struct {
	db *gorm.DB
}

func NewAchievementHandler(db *gorm.DB) *AchievementHandler {
	return &AchievementHandler{db: db}
}

type earnedAchievementResponse struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	EarnedAt    time.Time `json:"earnedAt"`
}

// ListMine returns the caller's earned achievements, newest first.
func (h *AchievementHandler) ListMine(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var earned []database.UserAchievement
	if err := h.db.WithContext(c.Request.Context()).
		Preload("Achievement").
		Where("user_id = ?", userID).
		Order("earned_at DESC").
		Find(&earned).Error; err != nil {
		Internal(c, "failed to list achievements")
		return
	}

	items := make([]earnedAchievementResponse, 0, len(earned))
	for _, ua := range earned {
		items = append(items, earnedAchievementResponse{
			ID:          ua.AchievementID,
			Title:       ua.Achievement.Title,
			Description: ua.Achievement.Description,
			Icon:        ua.Achievement.Icon,
			EarnedAt:    ua.EarnedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type streakResponse struct {
	CurrentStreak    int    `json:"currentStreak"`
	LongestStreak    int    `json:"longestStreak"`
	LastActivityDate string `json:"lastActivityDate,omitempty"`
}

// GetStreak returns the caller's streak; a trainee with no recorded
// activity gets zeros rather than 404.
func (h *AchievementHandler) GetStreak(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var streak database.LearningStreak
	err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		First(&streak).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, streakResponse{})
			return
		}
		Internal(c, "failed to load streak")
		return
	}

	resp := streakResponse{
		CurrentStreak: streak.CurrentStreak,
		LongestStreak: streak.LongestStreak,
	}
	if !streak.LastActivityDate.IsZero() {
		resp.LastActivityDate = streak.LastActivityDate.UTC().Format("2006-01-02")
	}
	c.JSON(http.StatusOK, resp)
}
