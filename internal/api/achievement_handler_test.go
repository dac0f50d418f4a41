package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
)

func TestListMine_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	trainee := seedUser(t, db, "trainee@example.com", "trainee", database.RoleTrainee, "")

	first := database.Achievement{Title: "First Steps", Description: "Complete your first slide."}
	second := database.Achievement{Title: "Note Taker", Description: "Write ten notes."}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("seed achievement: %v", err)
	}
	if err := db.Create(&second).Error; err != nil {
		t.Fatalf("seed achievement: %v", err)
	}
	now := time.Now().UTC()
	for _, ua := range []database.UserAchievement{
		{UserID: trainee.ID, AchievementID: first.ID, EarnedAt: now.Add(-48 * time.Hour)},
		{UserID: trainee.ID, AchievementID: second.ID, EarnedAt: now},
	} {
		if err := db.Create(&ua).Error; err != nil {
			t.Fatalf("seed earned achievement: %v", err)
		}
	}

	h := NewAchievementHandler(db)
	c, w := testContext(t, http.MethodGet, "/v1/trainee/achievements", nil)
	asUser(c, trainee.ID, database.RoleTrainee)
	h.ListMine(c)
	requireStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	items, _ := body["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 achievements, got %d", len(items))
	}
	newest := items[0].(map[string]any)
	if newest["title"] != "Note Taker" {
		t.Fatalf("expected newest badge first, got %v", newest["title"])
	}
}

func TestListMine_ScopedToCaller(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "owner@example.com", "owner", database.RoleTrainee, "")
	other := seedUser(t, db, "other@example.com", "other", database.RoleTrainee, "")

	badge := database.Achievement{Title: "First Steps"}
	if err := db.Create(&badge).Error; err != nil {
		t.Fatalf("seed achievement: %v", err)
	}
	if err := db.Create(&database.UserAchievement{
		UserID: owner.ID, AchievementID: badge.ID, EarnedAt: time.Now().UTC(),
	}).Error; err != nil {
		t.Fatalf("seed earned achievement: %v", err)
	}

	h := NewAchievementHandler(db)
	c, w := testContext(t, http.MethodGet, "/v1/trainee/achievements", nil)
	asUser(c, other.ID, database.RoleTrainee)
	h.ListMine(c)
	requireStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	items, _ := body["items"].([]any)
	if len(items) != 0 {
		t.Fatalf("expected no badges for another trainee, got %d", len(items))
	}
}

func TestGetStreak_ZeroesWithoutActivity(t *testing.T) {
	db := newTestDB(t)
	trainee := seedUser(t, db, "trainee@example.com", "trainee", database.RoleTrainee, "")

	h := NewAchievementHandler(db)
	c, w := testContext(t, http.MethodGet, "/v1/trainee/streak", nil)
	asUser(c, trainee.ID, database.RoleTrainee)
	h.GetStreak(c)
	requireStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	if body["currentStreak"] != float64(0) || body["longestStreak"] != float64(0) {
		t.Fatalf("expected zeroed streak, got %v", body)
	}
	if _, present := body["lastActivityDate"]; present {
		t.Fatal("expected lastActivityDate omitted when empty")
	}
}

func TestGetStreak_FormatsActivityDate(t *testing.T) {
	db := newTestDB(t)
	trainee := seedUser(t, db, "trainee@example.com", "trainee", database.RoleTrainee, "")
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	if err := db.Create(&database.LearningStreak{
		UserID:           trainee.ID,
		CurrentStreak:    4,
		LongestStreak:    9,
		LastActivityDate: day,
	}).Error; err != nil {
		t.Fatalf("seed streak: %v", err)
	}

	h := NewAchievementHandler(db)
	c, w := testContext(t, http.MethodGet, "/v1/trainee/streak", nil)
	asUser(c, trainee.ID, database.RoleTrainee)
	h.GetStreak(c)
	requireStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	if body["currentStreak"] != float64(4) || body["longestStreak"] != float64(9) {
		t.Fatalf("unexpected streak body %v", body)
	}
	if body["lastActivityDate"] != "2026-08-30" {
		t.Fatalf("expected date-only formatting, got %v", body["lastActivityDate"])
	}
}
