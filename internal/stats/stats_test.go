package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
)

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

func mustCreate(t *testing.T, db *gorm.DB, value any) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("create %T: %v", value, err)
	}
}

func TestAdminOverview(t *testing.T) {
	db := newTestDB(t)
	mustCreate(t, db, &database.User{Email: "a@x.com", Username: "a", Role: database.RoleAdmin})
	mustCreate(t, db, &database.User{Email: "t1@x.com", Username: "t1", Role: database.RoleTrainer})
	trainee1 := database.User{Email: "s1@x.com", Username: "s1", Role: database.RoleTrainee}
	trainee2 := database.User{Email: "s2@x.com", Username: "s2", Role: database.RoleTrainee}
	mustCreate(t, db, &trainee1)
	mustCreate(t, db, &trainee2)

	course := database.Course{Title: "c", Slug: "c", Status: database.CourseStatusPublished, TrainerID: 2}
	mustCreate(t, db, &course)
	mustCreate(t, db, &database.Course{Title: "d", Slug: "d", Status: database.CourseStatusDraft, TrainerID: 2})
	mustCreate(t, db, &database.Slide{CourseID: course.ID, Title: "s", Position: 1})

	mustCreate(t, db, &database.Enrollment{TraineeID: trainee1.ID, CourseID: course.ID, Status: database.EnrollmentStatusCompleted, Progress: 100, EnrolledAt: time.Now()})
	mustCreate(t, db, &database.Enrollment{TraineeID: trainee2.ID, CourseID: course.ID, Status: database.EnrollmentStatusActive, Progress: 50, EnrolledAt: time.Now()})

	svc := NewService(db)
	overview, err := svc.AdminOverview(context.Background())
	if err != nil {
		t.Fatalf("admin overview: %v", err)
	}

	if overview.Users.Total != 4 || overview.Users.Trainees != 2 || overview.Users.Trainers != 1 || overview.Users.Admins != 1 {
		t.Fatalf("unexpected user counts %+v", overview.Users)
	}
	if overview.CoursesByStatus[database.CourseStatusPublished] != 1 || overview.CoursesByStatus[database.CourseStatusDraft] != 1 {
		t.Fatalf("unexpected course counts %v", overview.CoursesByStatus)
	}
	if overview.Enrollments.Total != 2 || overview.Enrollments.Completed != 1 || overview.Enrollments.Active != 1 {
		t.Fatalf("unexpected enrollment counts %+v", overview.Enrollments)
	}
	if overview.AverageProgress != 75 {
		t.Fatalf("expected average progress 75, got %v", overview.AverageProgress)
	}
}

func TestGrowth_BucketsIncludeEmptyOnes(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	recent := database.User{Email: "new@x.com", Username: "new", Role: database.RoleTrainee}
	mustCreate(t, db, &recent)

	old := database.User{Email: "old@x.com", Username: "old", Role: database.RoleTrainee}
	mustCreate(t, db, &old)
	if err := db.Model(&database.User{}).Where("id = ?", old.ID).
		Update("created_at", now.AddDate(0, 0, -3)).Error; err != nil {
		t.Fatalf("backdate user: %v", err)
	}

	svc := NewService(db)
	buckets, err := svc.Growth(context.Background(), "day", 7)
	if err != nil {
		t.Fatalf("growth: %v", err)
	}
	if len(buckets) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(buckets))
	}

	var totalUsers int64
	for _, b := range buckets {
		totalUsers += b.NewUsers
	}
	if totalUsers != 2 {
		t.Fatalf("expected both signups counted, got %d", totalUsers)
	}
	if buckets[len(buckets)-1].NewUsers != 1 {
		t.Fatalf("expected newest bucket to hold today's signup, got %d", buckets[len(buckets)-1].NewUsers)
	}
	for i := 1; i < len(buckets); i++ {
		if !buckets[i].Start.After(buckets[i-1].Start) {
			t.Fatal("buckets not ordered oldest to newest")
		}
	}
}

func TestGrowth_InvalidPeriod(t *testing.T) {
	svc := NewService(newTestDB(t))
	_, err := svc.Growth(context.Background(), "year", 10)
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestGrowth_LimitIsCapped(t *testing.T) {
	svc := NewService(newTestDB(t))
	buckets, err := svc.Growth(context.Background(), "day", 500)
	if err != nil {
		t.Fatalf("growth: %v", err)
	}
	if len(buckets) != MaxGrowthLimit {
		t.Fatalf("expected %d buckets, got %d", MaxGrowthLimit, len(buckets))
	}
}

func TestAdminEngagement_DecilesAndPercentiles(t *testing.T) {
	db := newTestDB(t)
	trainee := database.User{Email: "s@x.com", Username: "s", Role: database.RoleTrainee}
	mustCreate(t, db, &trainee)

	progresses := []int{0, 10, 25, 50, 75, 100}
	for i, p := range progresses {
		mustCreate(t, db, &database.Enrollment{
			TraineeID:  trainee.ID,
			CourseID:   uint(i + 1),
			Status:     database.EnrollmentStatusActive,
			Progress:   p,
			EnrolledAt: time.Now(),
		})
	}

	svc := NewService(db)
	engagement, err := svc.AdminEngagement(context.Background())
	if err != nil {
		t.Fatalf("engagement: %v", err)
	}

	var decileTotal int64
	for _, n := range engagement.ProgressDeciles {
		decileTotal += n
	}
	if decileTotal != int64(len(progresses)) {
		t.Fatalf("expected %d enrollments across deciles, got %d", len(progresses), decileTotal)
	}
	if engagement.ProgressDeciles[0] != 1 {
		t.Fatalf("expected one enrollment in 0-9 decile, got %d", engagement.ProgressDeciles[0])
	}
	if engagement.ProgressDeciles[9] != 1 {
		t.Fatalf("expected 100%% enrollment in top decile, got %d", engagement.ProgressDeciles[9])
	}
	if engagement.MedianProgress != 37.5 {
		t.Fatalf("expected median 37.5, got %v", engagement.MedianProgress)
	}
	if engagement.TotalTrainees != 1 {
		t.Fatalf("expected one trainee, got %d", engagement.TotalTrainees)
	}
}

func TestAdminEngagement_ActiveRatio(t *testing.T) {
	db := newTestDB(t)
	active := database.User{Email: "a@x.com", Username: "a", Role: database.RoleTrainee}
	idle := database.User{Email: "i@x.com", Username: "i", Role: database.RoleTrainee}
	mustCreate(t, db, &active)
	mustCreate(t, db, &idle)

	mustCreate(t, db, &database.SlideProgress{TraineeID: active.ID, SlideID: 1, Completed: true})

	svc := NewService(db)
	engagement, err := svc.AdminEngagement(context.Background())
	if err != nil {
		t.Fatalf("engagement: %v", err)
	}
	if engagement.ActiveTrainees != 1 || engagement.TotalTrainees != 2 {
		t.Fatalf("expected 1/2 active, got %d/%d", engagement.ActiveTrainees, engagement.TotalTrainees)
	}
	if engagement.ActiveTraineePercent != 50 {
		t.Fatalf("expected 50%%, got %v", engagement.ActiveTraineePercent)
	}
}

func TestTrainerStats_ScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	owner := database.User{Email: "o@x.com", Username: "o", Role: database.RoleTrainer}
	other := database.User{Email: "x@x.com", Username: "x", Role: database.RoleTrainer}
	mustCreate(t, db, &owner)
	mustCreate(t, db, &other)

	mine := database.Course{Title: "mine", Slug: "mine", Status: database.CourseStatusPublished, TrainerID: owner.ID}
	theirs := database.Course{Title: "theirs", Slug: "theirs", Status: database.CourseStatusPublished, TrainerID: other.ID}
	mustCreate(t, db, &mine)
	mustCreate(t, db, &theirs)
	mustCreate(t, db, &database.Slide{CourseID: mine.ID, Title: "s", Position: 1})
	mustCreate(t, db, &database.Slide{CourseID: theirs.ID, Title: "s", Position: 1})

	trainee := database.User{Email: "s@x.com", Username: "s", Role: database.RoleTrainee}
	mustCreate(t, db, &trainee)
	mustCreate(t, db, &database.Enrollment{TraineeID: trainee.ID, CourseID: mine.ID, Status: database.EnrollmentStatusCompleted, Progress: 100, EnrolledAt: time.Now()})
	mustCreate(t, db, &database.Enrollment{TraineeID: trainee.ID, CourseID: theirs.ID, Status: database.EnrollmentStatusActive, Progress: 10, EnrolledAt: time.Now()})

	svc := NewService(db)
	overview, err := svc.TrainerStats(context.Background(), owner.ID)
	if err != nil {
		t.Fatalf("trainer stats: %v", err)
	}

	if overview.TotalCourses != 1 || overview.PublishedCourses != 1 {
		t.Fatalf("unexpected course counts %+v", overview)
	}
	if overview.TotalSlides != 1 {
		t.Fatalf("expected one slide, got %d", overview.TotalSlides)
	}
	if overview.TotalEnrollments != 1 || overview.CompletedCount != 1 {
		t.Fatalf("unexpected enrollment counts %+v", overview)
	}
	if overview.AverageProgress != 100 {
		t.Fatalf("expected average 100, got %v", overview.AverageProgress)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	values := []int{0, 10, 25, 50, 75, 100}
	if got := percentile(values, 0.5); got != 37.5 {
		t.Fatalf("median = %v, want 37.5", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("empty percentile = %v, want 0", got)
	}
	if got := percentile([]int{42}, 0.9); got != 42 {
		t.Fatalf("single value percentile = %v, want 42", got)
	}
}
