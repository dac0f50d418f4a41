package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/errcode"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/tasks"
)

// AchievementTaskHandler consumes completion events: it advances the
// trainee's learning streak and mints any newly crossed achievements.
// Tasks are retried by asynq on failure, so every step is idempotent.
type AchievementTaskHandler struct {
	db          *gorm.DB
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewAchievementTaskHandler creates the task handler.
func NewAchievementTaskHandler(db *gorm.DB, redisClient *redis.Client, logger *slog.Logger) *AchievementTaskHandler {
	return &AchievementTaskHandler{
		db:          db,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ProcessTask implements asynq.Handler.
func (h *AchievementTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.CompletionRecordedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("trainee_id", uint64(payload.TraineeID)),
		slog.String("event", payload.Event),
	)

	var trainee database.User
	if err := h.db.WithContext(ctx).First(&trainee, payload.TraineeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("trainee not found, skipping task")
			return nil
		}
		return err
	}

	streak, err := h.touchStreak(ctx, payload.TraineeID, time.Now())
	if err != nil {
		log.Error("update learning streak failed", slog.Any("error", err))
		return err
	}
	log.Info("learning streak updated",
		slog.Int("current_streak", streak.CurrentStreak),
		slog.Int("longest_streak", streak.LongestStreak),
	)

	earned, err := h.evaluateAchievements(ctx, payload.TraineeID, streak)
	if err != nil {
		log.Error("evaluate achievements failed", slog.Any("error", err))
		return err
	}

	for _, ua := range earned {
		log.Info("achievement earned",
			slog.Uint64("achievement_id", uint64(ua.AchievementID)),
			slog.String("title", ua.Achievement.Title),
		)
		msg := AchievementEarnedMessage{
			Type:          "achievement.earned",
			Code:          errcode.OK,
			AchievementID: ua.AchievementID,
			Title:         ua.Achievement.Title,
			Icon:          ua.Achievement.Icon,
			EarnedAt:      ua.EarnedAt,
			CorrelationID: payload.CorrelationID,
		}
		if h.redisClient != nil {
			if err := publishUserNotify(ctx, h.redisClient, payload.TraineeID, msg); err != nil {
				// Notification delivery is best-effort; the badge row
				// is already durable.
				log.Error("publish achievement notify failed", slog.Any("error", err))
			}
		}
	}

	return nil
}

// touchStreak upserts the streak row for an activity happening now:
// same day keeps it, next day increments, a gap resets to one.
func (h *AchievementTaskHandler) touchStreak(ctx context.Context, userID uint, now time.Time) (*database.LearningStreak, error) {
	var streak database.LearningStreak
	err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&streak).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		streak = database.LearningStreak{
			UserID:           userID,
			CurrentStreak:    1,
			LongestStreak:    1,
			LastActivityDate: dateOnly(now),
		}
		if err := h.db.WithContext(ctx).Create(&streak).Error; err != nil {
			return nil, err
		}
		return &streak, nil
	case err != nil:
		return nil, err
	}

	current, changed := NextStreak(streak.CurrentStreak, streak.LastActivityDate, now)
	if !changed {
		return &streak, nil
	}

	streak.CurrentStreak = current
	if current > streak.LongestStreak {
		streak.LongestStreak = current
	}
	streak.LastActivityDate = dateOnly(now)

	if err := h.db.WithContext(ctx).Model(&database.LearningStreak{}).
		Where("id = ?", streak.ID).
		Updates(map[string]any{
			"current_streak":     streak.CurrentStreak,
			"longest_streak":     streak.LongestStreak,
			"last_activity_date": streak.LastActivityDate,
		}).Error; err != nil {
		return nil, err
	}
	return &streak, nil
}

// NextStreak computes the streak value after activity at now. changed
// is false when the streak was already counted for today.
func NextStreak(current int, lastActivity, now time.Time) (next int, changed bool) {
	today := dateOnly(now)
	last := dateOnly(lastActivity)

	switch {
	case last.Equal(today):
		return current, false
	case last.Equal(today.AddDate(0, 0, -1)):
		return current + 1, true
	default:
		return 1, true
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// evaluateAchievements checks every criteria against the trainee's
// current counts and mints the missing badges. The unique index on
// (user, achievement) makes re-evaluation a no-op.
func (h *AchievementTaskHandler) evaluateAchievements(ctx context.Context, traineeID uint, streak *database.LearningStreak) ([]database.UserAchievement, error) {
	var achievements []database.Achievement
	if err := h.db.WithContext(ctx).Find(&achievements).Error; err != nil {
		return nil, err
	}
	if len(achievements) == 0 {
		return nil, nil
	}

	counts, err := h.loadCounts(ctx, traineeID, streak)
	if err != nil {
		return nil, err
	}

	var earnedIDs []uint
	if err := h.db.WithContext(ctx).Model(&database.UserAchievement{}).
		Where("user_id = ?", traineeID).
		Pluck("achievement_id", &earnedIDs).Error; err != nil {
		return nil, err
	}
	earned := make(map[uint]bool, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = true
	}

	var minted []database.UserAchievement
	now := time.Now()
	for _, a := range achievements {
		if earned[a.ID] {
			continue
		}

		var criteria database.AchievementCriteria
		if err := json.Unmarshal(a.Criteria, &criteria); err != nil {
			h.logger.Warn("skip achievement with malformed criteria",
				slog.Uint64("achievement_id", uint64(a.ID)),
				slog.Any("error", err),
			)
			continue
		}

		value, ok := counts[criteria.Type]
		if !ok || value < int64(criteria.Threshold) {
			continue
		}

		ua := database.UserAchievement{
			UserID:        traineeID,
			AchievementID: a.ID,
			EarnedAt:      now,
		}
		if err := h.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
			DoNothing: true,
		}).Create(&ua).Error; err != nil {
			return nil, err
		}
		ua.Achievement = a
		minted = append(minted, ua)
	}

	return minted, nil
}

func (h *AchievementTaskHandler) loadCounts(ctx context.Context, traineeID uint, streak *database.LearningStreak) (map[string]int64, error) {
	counts := map[string]int64{}

	var slidesCompleted int64
	if err := h.db.WithContext(ctx).Model(&database.SlideProgress{}).
		Where("trainee_id = ? AND completed = ?", traineeID, true).
		Count(&slidesCompleted).Error; err != nil {
		return nil, err
	}
	counts[database.CriteriaSlidesCompleted] = slidesCompleted

	var notesWritten int64
	if err := h.db.WithContext(ctx).Model(&database.Note{}).
		Where("trainee_id = ?", traineeID).
		Count(&notesWritten).Error; err != nil {
		return nil, err
	}
	counts[database.CriteriaNotesWritten] = notesWritten

	var coursesCompleted int64
	if err := h.db.WithContext(ctx).Model(&database.Enrollment{}).
		Where("trainee_id = ? AND status = ?", traineeID, database.EnrollmentStatusCompleted).
		Count(&coursesCompleted).Error; err != nil {
		return nil, err
	}
	counts[database.CriteriaCoursesCompleted] = coursesCompleted

	if streak != nil {
		counts[database.CriteriaStreakDays] = int64(streak.CurrentStreak)
	}

	return counts, nil
}
