package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/api"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/auth"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/config"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/storage"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/textimprove"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Printf("database connection ready")

	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	if err := seedAchievements(db); err != nil {
		log.Fatalf("seed achievements: %v", err)
	}
	log.Printf("database migrated")

	privateKeyPEM, err := os.ReadFile(cfg.Auth.PrivateKeyPath)
	if err != nil {
		log.Fatalf("read private key: %v", err)
	}
	publicKeyPEM, err := os.ReadFile(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("read public key: %v", err)
	}
	authService, err := auth.NewAuthService(privateKeyPEM, publicKeyPEM, cfg.Auth.AccessTTL(), cfg.Auth.RefreshTTL())
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	storageClient, err := storage.NewClient(cfg.Spaces)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.Spaces.Bucket)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	improver := textimprove.NewClient(cfg.TextImprove.BaseURL, cfg.TextImprove.APIKey)

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, cfg, db, asynqClient, authService, redisClient, logger, storageClient, improver)

	address := fmt.Sprintf(":%d", cfg.API.Port)
	log.Printf("api listening on %s", address)
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}

// seedAchievements inserts the built-in badge set. Existing rows with
// the same title are left untouched so redeploys are idempotent.
func seedAchievements(db *gorm.DB) error {
	defaults := []struct {
		title       string
		description string
		icon        string
		criteria    database.AchievementCriteria
	}{
		{"First Steps", "Complete your first slide", "footprints", database.AchievementCriteria{Type: database.CriteriaSlidesCompleted, Threshold: 1}},
		{"Quick Learner", "Complete 25 slides", "zap", database.AchievementCriteria{Type: database.CriteriaSlidesCompleted, Threshold: 25}},
		{"Slide Master", "Complete 100 slides", "trophy", database.AchievementCriteria{Type: database.CriteriaSlidesCompleted, Threshold: 100}},
		{"Note Taker", "Write 10 notes", "pencil", database.AchievementCriteria{Type: database.CriteriaNotesWritten, Threshold: 10}},
		{"Course Finisher", "Complete a full course", "medal", database.AchievementCriteria{Type: database.CriteriaCoursesCompleted, Threshold: 1}},
		{"Week Streak", "Learn 7 days in a row", "flame", database.AchievementCriteria{Type: database.CriteriaStreakDays, Threshold: 7}},
		{"Month Streak", "Learn 30 days in a row", "calendar", database.AchievementCriteria{Type: database.CriteriaStreakDays, Threshold: 30}},
	}

	for _, d := range defaults {
		var existing database.Achievement
		switch err := db.Where("title = ?", d.title).First(&existing).Error; {
		case err == nil:
			continue
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		criteria, err := json.Marshal(d.criteria)
		if err != nil {
			return err
		}
		achievement := database.Achievement{
			Title:       d.title,
			Description: d.description,
			Icon:        d.icon,
			Criteria:    datatypes.JSON(criteria),
		}
		if err := db.Create(&achievement).Error; err != nil {
			return err
		}
	}
	return nil
}
