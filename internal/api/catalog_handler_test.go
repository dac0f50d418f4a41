package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
)

func TestCatalogListCourses_PublishedOnly(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusPublished, 2)
	seedCourseWithSlides(t, db, trainer.ID, "wip-course", database.CourseStatusDraft, 1)
	seedCourseWithSlides(t, db, trainer.ID, "old-course", database.CourseStatusArchived, 1)

	h := NewCatalogHandler(db)
	c, w := testContext(t, http.MethodGet, "/v1/courses", nil)
	h.ListCourses(c)
	requireStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 published course, got %d", len(items))
	}
	item := items[0].(map[string]any)
	if item["slug"] != "go-basics" {
		t.Fatalf("unexpected course %v", item["slug"])
	}
	if item["slide_count"] != float64(2) {
		t.Fatalf("expected slide_count 2, got %v", item["slide_count"])
	}
	pagination := body["pagination"].(map[string]any)
	if pagination["total"] != float64(1) {
		t.Fatalf("expected total 1, got %v", pagination["total"])
	}
}

func TestCatalogGetCourse_ReturnsOutline(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	course, slides := seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusPublished, 3)

	h := NewCatalogHandler(db)
	c, w := testContext(t, http.MethodGet, "/v1/courses/go-basics", nil)
	c.Params = gin.Params{{Key: "slug", Value: course.Slug}}
	h.GetCourse(c)
	requireStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	outline, _ := body["slides"].([]any)
	if len(outline) != len(slides) {
		t.Fatalf("expected %d outline entries, got %d", len(slides), len(outline))
	}
	first := outline[0].(map[string]any)
	if first["position"] != float64(1) {
		t.Fatalf("expected outline ordered by position, got %v", first["position"])
	}
	if _, leaked := first["file_key"]; leaked {
		t.Fatal("outline must not expose file keys")
	}
}

func TestCatalogGetCourse_HidesDraft(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	course, _ := seedCourseWithSlides(t, db, trainer.ID, "wip-course", database.CourseStatusDraft, 1)

	h := NewCatalogHandler(db)
	c, w := testContext(t, http.MethodGet, "/v1/courses/wip-course", nil)
	c.Params = gin.Params{{Key: "slug", Value: course.Slug}}
	h.GetCourse(c)
	requireStatus(t, w, http.StatusNotFound)
}

func TestCatalogListCourses_CountsPerCourse(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusPublished, 3)
	seedCourseWithSlides(t, db, trainer.ID, "go-advanced", database.CourseStatusPublished, 1)
	seedCourseWithSlides(t, db, trainer.ID, "go-empty", database.CourseStatusPublished, 0)

	h := NewCatalogHandler(db)
	c, w := testContext(t, http.MethodGet, "/v1/courses", nil)
	h.ListCourses(c)
	requireStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	items, _ := body["items"].([]any)
	if len(items) != 3 {
		t.Fatalf("expected 3 published courses, got %d", len(items))
	}
	want := map[string]float64{"go-basics": 3, "go-advanced": 1, "go-empty": 0}
	for _, raw := range items {
		item := raw.(map[string]any)
		slug := item["slug"].(string)
		if item["slide_count"] != want[slug] {
			t.Fatalf("course %s: expected slide_count %v, got %v", slug, want[slug], item["slide_count"])
		}
	}
}
