package api

import (
	"net/http"
	"testing"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
)

func TestGetMe_ReturnsProfile(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationPending)

	h := NewUserHandler(db)
	c, w := testContext(t, http.MethodGet, "/v1/users/me", nil)
	asUser(c, trainer.ID, database.RoleTrainer)
	h.GetMe(c)
	requireStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	if body["username"] != "trainer" {
		t.Fatalf("unexpected username %v", body["username"])
	}
	if body["verification_status"] != database.VerificationPending {
		t.Fatalf("expected pending verification for trainer, got %v", body["verification_status"])
	}
}

func TestGetMe_HidesVerificationForTrainee(t *testing.T) {
	db := newTestDB(t)
	trainee := seedUser(t, db, "trainee@example.com", "trainee", database.RoleTrainee, "")

	h := NewUserHandler(db)
	c, w := testContext(t, http.MethodGet, "/v1/users/me", nil)
	asUser(c, trainee.ID, database.RoleTrainee)
	h.GetMe(c)
	requireStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	if _, present := body["verification_status"]; present {
		t.Fatal("trainee profile must not carry verification status")
	}
}

func TestGetMe_Unauthenticated(t *testing.T) {
	db := newTestDB(t)
	h := NewUserHandler(db)
	c, w := testContext(t, http.MethodGet, "/v1/users/me", nil)
	h.GetMe(c)
	requireStatus(t, w, http.StatusUnauthorized)
}

func TestUpdateMe_UpdatesAllowedFields(t *testing.T) {
	db := newTestDB(t)
	trainee := seedUser(t, db, "trainee@example.com", "trainee", database.RoleTrainee, "")

	h := NewUserHandler(db)
	c, w := testContext(t, http.MethodPatch, "/v1/users/me", map[string]any{
		"full_name": "Ada Lovelace",
		"bio":       "First programmer.",
	})
	asUser(c, trainee.ID, database.RoleTrainee)
	h.UpdateMe(c)
	requireStatus(t, w, http.StatusOK)

	var reloaded database.User
	if err := db.First(&reloaded, trainee.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if reloaded.FullName != "Ada Lovelace" || reloaded.Bio != "First programmer." {
		t.Fatalf("profile not updated: %+v", reloaded)
	}
}

func TestUpdateMe_IgnoresRoleEscalation(t *testing.T) {
	db := newTestDB(t)
	trainee := seedUser(t, db, "trainee@example.com", "trainee", database.RoleTrainee, "")

	h := NewUserHandler(db)
	c, w := testContext(t, http.MethodPatch, "/v1/users/me", map[string]any{
		"full_name": "Ada",
		"role":      database.RoleAdmin,
	})
	asUser(c, trainee.ID, database.RoleTrainee)
	h.UpdateMe(c)
	requireStatus(t, w, http.StatusOK)

	var reloaded database.User
	if err := db.First(&reloaded, trainee.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if reloaded.Role != database.RoleTrainee {
		t.Fatalf("role must be immutable here, got %q", reloaded.Role)
	}
}

func TestUpdateMe_EmptyPayload(t *testing.T) {
	db := newTestDB(t)
	trainee := seedUser(t, db, "trainee@example.com", "trainee", database.RoleTrainee, "")

	h := NewUserHandler(db)
	c, w := testContext(t, http.MethodPatch, "/v1/users/me", map[string]any{})
	asUser(c, trainee.ID, database.RoleTrainee)
	h.UpdateMe(c)
	requireStatus(t, w, http.StatusBadRequest)
}
