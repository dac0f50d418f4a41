package api

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/errcode"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/progress"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/tasks"
)

func TestUpdateSlideProgress_CompletionEnqueuesTask(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	course, slides := seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusPublished, 2)
	trainee := seedUser(t, db, "trainee@example.com", "trainee", database.RoleTrainee, "")
	seedEnrollment(t, db, trainee.ID, course.ID)

	enqueuer := &fakeEnqueuer{}
	h := NewProgressHandler(db, progress.NewService(db), enqueuer)

	c, w := testContext(t, http.MethodPatch, "/v1/trainee/progress/slides/x", map[string]any{"completed": true})
	asUser(c, trainee.ID, database.RoleTrainee)
	c.Params = gin.Params{{Key: "slideID", Value: strconv.Itoa(int(slides[0].ID))}}

	h.UpdateSlideProgress(c)
	requireStatus(t, w, http.StatusOK)

	if len(enqueuer.tasks) != 1 {
		t.Fatalf("expected one enqueued task, got %d", len(enqueuer.tasks))
	}
	if enqueuer.tasks[0].Type() != tasks.TypeCompletionRecorded {
		t.Fatalf("unexpected task type %q", enqueuer.tasks[0].Type())
	}

	body := decodeBody(t, w)
	courseProgress, ok := body["courseProgress"].(map[string]any)
	if !ok {
		t.Fatalf("missing courseProgress in %v", body)
	}
	if got := courseProgress["progress"].(float64); got != 50 {
		t.Fatalf("expected progress 50, got %v", got)
	}
}

func TestUpdateSlideProgress_RevertDoesNotEnqueue(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	course, slides := seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusPublished, 1)
	trainee := seedUser(t, db, "trainee@example.com", "trainee", database.RoleTrainee, "")
	seedEnrollment(t, db, trainee.ID, course.ID)

	enqueuer := &fakeEnqueuer{}
	h := NewProgressHandler(db, progress.NewService(db), enqueuer)

	c, w := testContext(t, http.MethodPatch, "/v1/trainee/progress/slides/x", map[string]any{"completed": false})
	asUser(c, trainee.ID, database.RoleTrainee)
	c.Params = gin.Params{{Key: "slideID", Value: strconv.Itoa(int(slides[0].ID))}}

	h.UpdateSlideProgress(c)
	requireStatus(t, w, http.StatusOK)

	if len(enqueuer.tasks) != 0 {
		t.Fatalf("expected no enqueued tasks, got %d", len(enqueuer.tasks))
	}
}

func TestUpdateSlideProgress_EnqueueFailureStillSucceeds(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	course, slides := seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusPublished, 1)
	trainee := seedUser(t, db, "trainee@example.com", "trainee", database.RoleTrainee, "")
	seedEnrollment(t, db, trainee.ID, course.ID)

	enqueuer := &fakeEnqueuer{err: errFakeUpstream}
	h := NewProgressHandler(db, progress.NewService(db), enqueuer)

	c, w := testContext(t, http.MethodPatch, "/v1/trainee/progress/slides/x", map[string]any{"completed": true})
	asUser(c, trainee.ID, database.RoleTrainee)
	c.Params = gin.Params{{Key: "slideID", Value: strconv.Itoa(int(slides[0].ID))}}

	h.UpdateSlideProgress(c)
	requireStatus(t, w, http.StatusOK)
}

func TestUpdateSlideProgress_NotEnrolledForbidden(t *testing.T) {
	db := newTestDB(t)
	trainer := seedUser(t, db, "trainer@example.com", "trainer", database.RoleTrainer, database.VerificationApproved)
	_, slides := seedCourseWithSlides(t, db, trainer.ID, "go-basics", database.CourseStatusPublished, 1)
	outsider := seedUser(t, db, "other@example.com", "other", database.RoleTrainee, "")

	h := NewProgressHandler(db, progress.NewService(db), &fakeEnqueuer{})

	c, w := testContext(t, http.MethodPatch, "/v1/trainee/progress/slides/x", map[string]any{"completed": true})
	asUser(c, outsider.ID, database.RoleTrainee)
	c.Params = gin.Params{{Key: "slideID", Value: strconv.Itoa(int(slides[0].ID))}}

	h.UpdateSlideProgress(c)
	requireStatus(t, w, http.StatusForbidden)

	body := decodeBody(t, w)
	if body["code"] != float64(errcode.NotEnrolled) {
		t.Fatalf("expected code %d in the envelope, got %v", errcode.NotEnrolled, body["code"])
	}
}

func TestUpdateSlideProgress_MissingSlideNotFound(t *testing.T) {
	db := newTestDB(t)
	trainee := seedUser(t, db, "trainee@example.com", "trainee", database.RoleTrainee, "")

	h := NewProgressHandler(db, progress.NewService(db), &fakeEnqueuer{})

	c, w := testContext(t, http.MethodPatch, "/v1/trainee/progress/slides/x", map[string]any{"completed": true})
	asUser(c, trainee.ID, database.RoleTrainee)
	c.Params = gin.Params{{Key: "slideID", Value: "9999"}}

	h.UpdateSlideProgress(c)
	requireStatus(t, w, http.StatusNotFound)
}
