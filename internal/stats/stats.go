package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
)

// Growth query bounds.
const (
	DefaultGrowthLimit = 30
	MaxGrowthLimit     = 90
)

// ErrInvalidPeriod rejects growth periods other than day, week, month.
var ErrInvalidPeriod = errors.New("invalid growth period")

// Service runs the read-only dashboard aggregations. No mutation, no
// caching; every call re-executes the queries.
type Service struct {
	db *gorm.DB
}

// NewService constructs the aggregator.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Overview is the admin dashboard headline aggregate.
type Overview struct {
	Users           UserCounts        `json:"users"`
	CoursesByStatus map[string]int64  `json:"coursesByStatus"`
	Enrollments     EnrollmentCounts  `json:"enrollments"`
	TotalSlides     int64             `json:"totalSlides"`
	TotalNotes      int64             `json:"totalNotes"`
	AverageProgress float64           `json:"averageProgress"`
}

// UserCounts breaks the user population down by role.
type UserCounts struct {
	Total    int64 `json:"total"`
	Trainees int64 `json:"trainees"`
	Trainers int64 `json:"trainers"`
	Admins   int64 `json:"admins"`
}

// EnrollmentCounts summarises enrollments.
type EnrollmentCounts struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
}

// AdminOverview computes the totals dashboard inside one read
// transaction so every sub-count describes the same snapshot.
func (s *Service) AdminOverview(ctx context.Context) (*Overview, error) {
	var out Overview
	out.CoursesByStatus = map[string]int64{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&database.User{}).Count(&out.Users.Total).Error; err != nil {
			return err
		}
		roleCounts := map[string]*int64{
			database.RoleTrainee: &out.Users.Trainees,
			database.RoleTrainer: &out.Users.Trainers,
			database.RoleAdmin:   &out.Users.Admins,
		}
		for role, dst := range roleCounts {
			if err := tx.Model(&database.User{}).Where("role = ?", role).Count(dst).Error; err != nil {
				return err
			}
		}

		type statusCount struct {
			Status string
			N      int64
		}
		var courseCounts []statusCount
		if err := tx.Model(&database.Course{}).
			Select("status, count(*) as n").
			Group("status").
			Scan(&courseCounts).Error; err != nil {
			return err
		}
		for _, c := range courseCounts {
			out.CoursesByStatus[c.Status] = c.N
		}

		if err := tx.Model(&database.Enrollment{}).Count(&out.Enrollments.Total).Error; err != nil {
			return err
		}
		if err := tx.Model(&database.Enrollment{}).
			Where("status = ?", database.EnrollmentStatusCompleted).
			Count(&out.Enrollments.Completed).Error; err != nil {
			return err
		}
		out.Enrollments.Active = out.Enrollments.Total - out.Enrollments.Completed

		if err := tx.Model(&database.Slide{}).Count(&out.TotalSlides).Error; err != nil {
			return err
		}
		if err := tx.Model(&database.Note{}).Count(&out.TotalNotes).Error; err != nil {
			return err
		}

		if out.Enrollments.Total > 0 {
			var avg *float64
			if err := tx.Model(&database.Enrollment{}).
				Select("avg(progress)").
				Scan(&avg).Error; err != nil {
				return err
			}
			if avg != nil {
				out.AverageProgress = *avg
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GrowthBucket is one time bucket of the growth series.
type GrowthBucket struct {
	Start          time.Time `json:"start"`
	NewUsers       int64     `json:"newUsers"`
	NewEnrollments int64     `json:"newEnrollments"`
}

// Growth buckets new-user and new-enrollment counts over time.
// period is one of day, week, month; limit caps the bucket count.
// Buckets run oldest to newest and include empty buckets. The two
// series run as separate statements, read committed only.
func (s *Service) Growth(ctx context.Context, period string, limit int) ([]GrowthBucket, error) {
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultGrowthLimit
	}
	if limit > MaxGrowthLimit {
		limit = MaxGrowthLimit
	}

	now := time.Now().UTC()
	start := bucketStart(now, period)
	for i := 1; i < limit; i++ {
		start = prevBucket(start, period)
	}

	var userTimes []time.Time
	if err := s.db.WithContext(ctx).Model(&database.User{}).
		Where("created_at >= ?", start).
		Pluck("created_at", &userTimes).Error; err != nil {
		return nil, err
	}
	var enrollmentTimes []time.Time
	if err := s.db.WithContext(ctx).Model(&database.Enrollment{}).
		Where("created_at >= ?", start).
		Pluck("created_at", &enrollmentTimes).Error; err != nil {
		return nil, err
	}

	buckets := make([]GrowthBucket, 0, limit)
	cursor := start
	for i := 0; i < limit; i++ {
		buckets = append(buckets, GrowthBucket{Start: cursor})
		cursor = nextBucket(cursor, period)
	}

	index := func(t time.Time) int {
		b := bucketStart(t.UTC(), period)
		for i := range buckets {
			if buckets[i].Start.Equal(b) {
				return i
			}
		}
		return -1
	}
	for _, t := range userTimes {
		if i := index(t); i >= 0 {
			buckets[i].NewUsers++
		}
	}
	for _, t := range enrollmentTimes {
		if i := index(t); i >= 0 {
			buckets[i].NewEnrollments++
		}
	}

	return buckets, nil
}

// Engagement is the admin engagement dashboard aggregate.
type Engagement struct {
	ProgressDeciles      [10]int64 `json:"progressDeciles"`
	MedianProgress       float64   `json:"medianProgress"`
	P90Progress          float64   `json:"p90Progress"`
	ActiveTrainees       int64     `json:"activeTrainees"`
	TotalTrainees        int64     `json:"totalTrainees"`
	ActiveTraineePercent float64   `json:"activeTraineePercent"`
}

// AdminEngagement computes the progress distribution and the share of
// trainees with completion activity in the last 7 days.
func (s *Service) AdminEngagement(ctx context.Context) (*Engagement, error) {
	var out Engagement

	var progresses []int
	if err := s.db.WithContext(ctx).Model(&database.Enrollment{}).
		Pluck("progress", &progresses).Error; err != nil {
		return nil, err
	}

	for _, p := range progresses {
		bucket := p / 10
		if bucket > 9 {
			bucket = 9
		}
		if bucket < 0 {
			bucket = 0
		}
		out.ProgressDeciles[bucket]++
	}
	out.MedianProgress = percentile(progresses, 0.5)
	out.P90Progress = percentile(progresses, 0.9)

	if err := s.db.WithContext(ctx).Model(&database.User{}).
		Where("role = ?", database.RoleTrainee).
		Count(&out.TotalTrainees).Error; err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	if err := s.db.WithContext(ctx).Model(&database.SlideProgress{}).
		Where("updated_at >= ?", cutoff).
		Distinct("trainee_id").
		Count(&out.ActiveTrainees).Error; err != nil {
		return nil, err
	}

	if out.TotalTrainees > 0 {
		out.ActiveTraineePercent = 100 * float64(out.ActiveTrainees) / float64(out.TotalTrainees)
	}
	return &out, nil
}

// TrainerOverview is the per-trainer dashboard aggregate.
type TrainerOverview struct {
	TotalCourses     int64   `json:"totalCourses"`
	PublishedCourses int64   `json:"publishedCourses"`
	TotalSlides      int64   `json:"totalSlides"`
	TotalEnrollments int64   `json:"totalEnrollments"`
	CompletedCount   int64   `json:"completedCount"`
	AverageProgress  float64 `json:"averageProgress"`
}

// TrainerStats aggregates engagement across one trainer's courses.
func (s *Service) TrainerStats(ctx context.Context, trainerID uint) (*TrainerOverview, error) {
	var out TrainerOverview
	db := s.db.WithContext(ctx)

	if err := db.Model(&database.Course{}).
		Where("trainer_id = ?", trainerID).
		Count(&out.TotalCourses).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&database.Course{}).
		Where("trainer_id = ? AND status = ?", trainerID, database.CourseStatusPublished).
		Count(&out.PublishedCourses).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&database.Slide{}).
		Joins("JOIN courses ON courses.id = slides.course_id").
		Where("courses.trainer_id = ? AND courses.deleted_at IS NULL", trainerID).
		Count(&out.TotalSlides).Error; err != nil {
		return nil, err
	}

	enrollments := db.Model(&database.Enrollment{}).
		Joins("JOIN courses ON courses.id = enrollments.course_id").
		Where("courses.trainer_id = ? AND courses.deleted_at IS NULL", trainerID)
	if err := enrollments.Count(&out.TotalEnrollments).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&database.Enrollment{}).
		Joins("JOIN courses ON courses.id = enrollments.course_id").
		Where("courses.trainer_id = ? AND courses.deleted_at IS NULL AND enrollments.status = ?", trainerID, database.EnrollmentStatusCompleted).
		Count(&out.CompletedCount).Error; err != nil {
		return nil, err
	}

	if out.TotalEnrollments > 0 {
		var avg *float64
		if err := db.Model(&database.Enrollment{}).
			Joins("JOIN courses ON courses.id = enrollments.course_id").
			Where("courses.trainer_id = ? AND courses.deleted_at IS NULL", trainerID).
			Select("avg(enrollments.progress)").
			Scan(&avg).Error; err != nil {
			return nil, err
		}
		if avg != nil {
			out.AverageProgress = *avg
		}
	}
	return &out, nil
}

func percentile(values []int, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	pos := q * float64(len(sorted)-1)
	lower := int(pos)
	upper := lower + 1
	if upper >= len(sorted) {
		return float64(sorted[lower])
	}
	frac := pos - float64(lower)
	return float64(sorted[lower])*(1-frac) + float64(sorted[upper])*frac
}

func validatePeriod(period string) error {
	switch period {
	case "", "day", "week", "month":
		return nil
	default:
		return fmt.Errorf("%w %q", ErrInvalidPeriod, period)
	}
}

func bucketStart(t time.Time, period string) time.Time {
	t = t.UTC()
	switch period {
	case "week":
		day := t.Truncate(24 * time.Hour)
		weekday := int(day.Weekday())
		// ISO-style weeks starting Monday.
		offset := (weekday + 6) % 7
		return day.AddDate(0, 0, -offset)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(24 * time.Hour)
	}
}

func nextBucket(t time.Time, period string) time.Time {
	switch period {
	case "week":
		return t.AddDate(0, 0, 7)
	case "month":
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func prevBucket(t time.Time, period string) time.Time {
	switch period {
	case "week":
		return t.AddDate(0, 0, -7)
	case "month":
		return t.AddDate(0, -1, 0)
	default:
		return t.AddDate(0, 0, -1)
	}
}
