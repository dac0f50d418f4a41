package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AchievementEarnedMessage is the wire shape forwarded to connected
// websocket clients via Redis pub/sub. Field names match the frontend.
type AchievementEarnedMessage struct {
	Type          string    `json:"type"`
	Code          int       `json:"code"`
	AchievementID uint      `json:"achievement_id"`
	Title         string    `json:"title"`
	Icon          string    `json:"icon"`
	EarnedAt      time.Time `json:"earned_at"`
	CorrelationID string    `json:"correlation_id"`
}

// UserNotifyChannel names the per-user pub/sub channel the websocket
// handler subscribes to.
func UserNotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

func publishUserNotify(ctx context.Context, client *redis.Client, userID uint, msg AchievementEarnedMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notify message: %w", err)
	}
	if err := client.Publish(ctx, UserNotifyChannel(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish notify message: %w", err)
	}
	return nil
}
