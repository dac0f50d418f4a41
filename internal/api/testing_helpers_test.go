package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fakeStorage struct {
	uploaded  map[string][]byte
	deleted   []string
	deleteErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	return &minio.UploadInfo{}, nil
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + objectKey, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.uploaded, objectKey)
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type fakeImprover struct {
	enabled bool
	result  string
	err     error
}

func (f *fakeImprover) Enabled() bool { return f.enabled }

func (f *fakeImprover) Improve(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.result != "" {
		return f.result, nil
	}
	return text, nil
}

var errFakeUpstream = errors.New("upstream unavailable")

func testContext(t *testing.T, method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

func asUser(c *gin.Context, userID uint, role string) {
	c.Set("userID", userID)
	c.Set("userRole", role)
}

func seedUser(t *testing.T, db *gorm.DB, email, username, role, verification string) database.User {
	t.Helper()
	user := database.User{
		Email:              email,
		Username:           username,
		PasswordHash:       "x",
		Role:               role,
		VerificationStatus: verification,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return user
}

func seedCourseWithSlides(t *testing.T, db *gorm.DB, trainerID uint, slug, status string, slideCount int) (database.Course, []database.Slide) {
	t.Helper()
	course := database.Course{
		Title:     "Course " + slug,
		Slug:      slug,
		Status:    status,
		TrainerID: trainerID,
	}
	if err := db.Create(&course).Error; err != nil {
		t.Fatalf("seed course %s: %v", slug, err)
	}
	slides := make([]database.Slide, 0, slideCount)
	for i := 0; i < slideCount; i++ {
		slide := database.Slide{
			CourseID: course.ID,
			Title:    "slide",
			Position: i + 1,
			FileURL:  "slides/" + slug,
		}
		if err := db.Create(&slide).Error; err != nil {
			t.Fatalf("seed slide: %v", err)
		}
		slides = append(slides, slide)
	}
	return course, slides
}

func seedEnrollment(t *testing.T, db *gorm.DB, traineeID, courseID uint) database.Enrollment {
	t.Helper()
	enrollment := database.Enrollment{
		TraineeID:  traineeID,
		CourseID:   courseID,
		Status:     database.EnrollmentStatusActive,
		EnrolledAt: time.Now(),
	}
	if err := db.Create(&enrollment).Error; err != nil {
		t.Fatalf("seed enrollment: %v", err)
	}
	return enrollment
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d body=%s", want, w.Code, w.Body.String())
	}
}
