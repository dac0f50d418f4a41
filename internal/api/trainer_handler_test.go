package api

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/stats"
)

func TestCreateCourse_UnverifiedTrainerForbidden(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationPending)

	h := NewTrainerHandler(db, newFakeStorage(), stats.NewService(db))
	c, w := testContext(t, http.MethodPost, "/v1/trainer/courses", map[string]any{"title": "Go Basics"})
	asUser(c, trainer.ID, database.RoleTrainer)

	h.CreateCourse(c)
	requireStatus(t, w, http.StatusForbidden)

	var count int64
	if err := db.Model(&database.Course{}).Count(&count).Error; err != nil {
		t.Fatalf("count courses: %v", err)
	}
	if count != 0 {
		t.Fatal("course created despite unverified trainer")
	}
}

func TestCreateCourse_GeneratesSlug(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)

	h := NewTrainerHandler(db, newFakeStorage(), stats.NewService(db))
	c, w := testContext(t, http.MethodPost, "/v1/trainer/courses", map[string]any{"title": "Go: The Basics!"})
	asUser(c, trainer.ID, database.RoleTrainer)

	h.CreateCourse(c)
	requireStatus(t, w, http.StatusCreated)

	var course database.Course
	if err := db.First(&course).Error; err != nil {
		t.Fatalf("load course: %v", err)
	}
	if course.Slug != "go-the-basics" {
		t.Fatalf("expected slug go-the-basics, got %q", course.Slug)
	}
	if course.Status != database.CourseStatusDraft {
		t.Fatalf("expected draft status, got %q", course.Status)
	}
}

func TestCreateCourse_SlugCollisionGetsSuffix(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusDraft, 0)

	h := NewTrainerHandler(db, newFakeStorage(), stats.NewService(db))
	c, w := testContext(t, http.MethodPost, "/v1/trainer/courses", map[string]any{"title": "Go Basics"})
	asUser(c, trainer.ID, database.RoleTrainer)

	h.CreateCourse(c)
	requireStatus(t, w, http.StatusCreated)

	var courses []database.Course
	if err := db.Order("id ASC").Find(&courses).Error; err != nil {
		t.Fatalf("load courses: %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("expected two courses, got %d", len(courses))
	}
	created := courses[1]
	if created.Slug == "go-basics" {
		t.Fatal("expected a suffixed slug on collision")
	}
	if len(created.Slug) <= len("go-basics") {
		t.Fatalf("expected suffixed slug, got %q", created.Slug)
	}
}

func TestSubmitCourse_OnlyFromDraft(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	draft, _ := seedCourseWithSlides(t, db, trainer.ID, "draft-course", database.CourseStatusDraft, 0)
	published, _ := seedCourseWithSlides(t, db, trainer.ID, "live-course", database.CourseStatusPublished, 0)

	h := NewTrainerHandler(db, newFakeStorage(), stats.NewService(db))

	c, w := testContext(t, http.MethodPost, "/v1/trainer/courses/x/submit", nil)
	asUser(c, trainer.ID, database.RoleTrainer)
	c.Params = gin.Params{{Key: "id", Value: strconv.Itoa(int(draft.ID))}}
	h.SubmitCourse(c)
	requireStatus(t, w, http.StatusOK)

	var reloaded database.Course
	if err := db.First(&reloaded, draft.ID).Error; err != nil {
		t.Fatalf("reload course: %v", err)
	}
	if reloaded.Status != database.CourseStatusUnderReview {
		t.Fatalf("expected under_review, got %q", reloaded.Status)
	}

	c, w = testContext(t, http.MethodPost, "/v1/trainer/courses/x/submit", nil)
	asUser(c, trainer.ID, database.RoleTrainer)
	c.Params = gin.Params{{Key: "id", Value: strconv.Itoa(int(published.ID))}}
	h.SubmitCourse(c)
	requireStatus(t, w, http.StatusConflict)
}

func TestGetCourse_OtherTrainerNotFound(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "owner@example.com", "owner", database.RoleTrainer, database.VerificationApproved)
	course, _ := seedCourseWithSlides(t, db, owner.ID, "go-basics", database.CourseStatusDraft, 1)
	other := seedUser(t, db, "other@example.com", "other", database.RoleTrainer, database.VerificationApproved)

	h := NewTrainerHandler(db, newFakeStorage(), stats.NewService(db))
	c, w := testContext(t, http.MethodGet, "/v1/trainer/courses/x", nil)
	asUser(c, other.ID, database.RoleTrainer)
	c.Params = gin.Params{{Key: "id", Value: strconv.Itoa(int(course.ID))}}

	h.GetCourse(c)
	requireStatus(t, w, http.StatusNotFound)
}

func TestDeleteCourse_StorageFailureStillDeletesRows(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	course, _ := seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusPublished, 2)

	store := newFakeStorage()
	store.deleteErr = errFakeUpstream

	h := NewTrainerHandler(db, store, stats.NewService(db))
	c, w := testContext(t, http.MethodDelete, "/v1/trainer/courses/x", nil)
	asUser(c, trainer.ID, database.RoleTrainer)
	c.Params = gin.Params{{Key: "id", Value: strconv.Itoa(int(course.ID))}}

	h.DeleteCourse(c)
	c.Writer.WriteHeaderNow()
	requireStatus(t, w, http.StatusNoContent)

	var courseCount, slideCount int64
	if err := db.Model(&database.Course{}).Count(&courseCount).Error; err != nil {
		t.Fatalf("count courses: %v", err)
	}
	if err := db.Model(&database.Slide{}).Count(&slideCount).Error; err != nil {
		t.Fatalf("count slides: %v", err)
	}
	if courseCount != 0 || slideCount != 0 {
		t.Fatalf("expected rows gone, got courses=%d slides=%d", courseCount, slideCount)
	}
	if len(store.deleted) != 2 {
		t.Fatalf("expected two storage delete attempts, got %d", len(store.deleted))
	}
}

func TestCreateSlide_AppendsPosition(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	course, _ := seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusDraft, 2)

	h := NewTrainerHandler(db, newFakeStorage(), stats.NewService(db))
	c, w := testContext(t, http.MethodPost, "/v1/trainer/courses/x/slides", map[string]any{
		"title":    "Interfaces",
		"file_url": "slides/interfaces.pdf",
	})
	asUser(c, trainer.ID, database.RoleTrainer)
	c.Params = gin.Params{{Key: "id", Value: strconv.Itoa(int(course.ID))}}

	h.CreateSlide(c)
	requireStatus(t, w, http.StatusCreated)

	var slide database.Slide
	if err := db.Where("title = ?", "Interfaces").First(&slide).Error; err != nil {
		t.Fatalf("load slide: %v", err)
	}
	if slide.Position != 3 {
		t.Fatalf("expected position 3, got %d", slide.Position)
	}
}

func TestReorderSlides_RejectsMismatchedList(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	course, slides := seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusDraft, 2)

	h := NewTrainerHandler(db, newFakeStorage(), stats.NewService(db))
	c, w := testContext(t, http.MethodPut, "/v1/trainer/courses/x/slides/reorder", map[string]any{
		"slideIds": []uint{slides[0].ID},
	})
	asUser(c, trainer.ID, database.RoleTrainer)
	c.Params = gin.Params{{Key: "id", Value: strconv.Itoa(int(course.ID))}}

	h.ReorderSlides(c)
	requireStatus(t, w, http.StatusBadRequest)
}

func TestReorderSlides_RewritesPositions(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	course, slides := seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusDraft, 3)

	h := NewTrainerHandler(db, newFakeStorage(), stats.NewService(db))
	c, w := testContext(t, http.MethodPut, "/v1/trainer/courses/x/slides/reorder", map[string]any{
		"slideIds": []uint{slides[2].ID, slides[0].ID, slides[1].ID},
	})
	asUser(c, trainer.ID, database.RoleTrainer)
	c.Params = gin.Params{{Key: "id", Value: strconv.Itoa(int(course.ID))}}

	h.ReorderSlides(c)
	requireStatus(t, w, http.StatusOK)

	var reordered []database.Slide
	if err := db.Where("course_id = ?", course.ID).Order("position ASC").Find(&reordered).Error; err != nil {
		t.Fatalf("load slides: %v", err)
	}
	want := []uint{slides[2].ID, slides[0].ID, slides[1].ID}
	for i, slide := range reordered {
		if slide.ID != want[i] {
			t.Fatalf("position %d: expected slide %d, got %d", i+1, want[i], slide.ID)
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Go Basics", "go-basics"},
		{"  Trim Me  ", "trim-me"},
		{"C++ & Go!", "c-go"},
		{"---", ""},
	}
	for _, tc := range cases {
		if got := slugify(tc.in); got != tc.want {
			t.Errorf("slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCreateCourse_ReusedTitleAfterDeleteGetsSuffix(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	course, _ := seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusDraft, 0)

	// Soft delete keeps the slug's unique-index entry alive.
	if err := db.Delete(&database.Course{}, course.ID).Error; err != nil {
		t.Fatalf("delete course: %v", err)
	}

	h := NewTrainerHandler(db, newFakeStorage(), stats.NewService(db))
	c, w := testContext(t, http.MethodPost, "/v1/trainer/courses", map[string]any{"title": "Go Basics"})
	asUser(c, trainer.ID, database.RoleTrainer)

	h.CreateCourse(c)
	requireStatus(t, w, http.StatusCreated)

	var created database.Course
	if err := db.Order("id DESC").First(&created).Error; err != nil {
		t.Fatalf("load created course: %v", err)
	}
	if created.Slug == "go-basics" {
		t.Fatal("expected a suffixed slug while the deleted course holds the base slug")
	}
	if len(created.Slug) <= len("go-basics") || created.Slug[:len("go-basics-")] != "go-basics-" {
		t.Fatalf("expected go-basics- prefix, got %q", created.Slug)
	}
}
