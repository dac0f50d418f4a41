package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role values carried by User.Role and token claims.
const (
	RoleTrainee = "trainee"
	RoleTrainer = "trainer"
	RoleAdmin   = "admin"
)

// Trainer verification states reviewed by admins.
const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

// Course lifecycle states. Transitions are always explicit actions,
// never automatic.
const (
	CourseStatusDraft       = "draft"
	CourseStatusUnderReview = "under_review"
	CourseStatusPublished   = "published"
	CourseStatusArchived    = "archived"
)

// Enrollment states derived from slide completion.
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusCompleted = "completed"
)

// Achievement criteria types evaluated by the worker.
const (
	CriteriaSlidesCompleted  = "slides_completed"
	CriteriaNotesWritten     = "notes_written"
	CriteriaStreakDays       = "streak_days"
	CriteriaCoursesCompleted = "courses_completed"
)

// User is an account in any of the three roles. VerificationStatus is
// only meaningful for trainers.
type User struct {
	gorm.Model
	Email              string `gorm:"uniqueIndex;size:255"`
	Username           string `gorm:"uniqueIndex;size:64"`
	PasswordHash       string `gorm:"size:255"`
	Role               string `gorm:"size:16;index;default:trainee"`
	VerificationStatus string `gorm:"size:16;default:pending"`
	FullName           string `gorm:"size:128"`
	Bio                string `gorm:"size:1024"`
	ImageURL           string `gorm:"size:512"`

	Courses       []Course        `gorm:"foreignKey:TrainerID;constraint:OnDelete:CASCADE"`
	Enrollments   []Enrollment    `gorm:"foreignKey:TraineeID;constraint:OnDelete:CASCADE"`
	Notes         []Note          `gorm:"foreignKey:TraineeID;constraint:OnDelete:CASCADE"`
	SlideProgress []SlideProgress `gorm:"foreignKey:TraineeID;constraint:OnDelete:CASCADE"`
}

// Course is owned by exactly one trainer and carries an explicit
// moderation status.
type Course struct {
	gorm.Model
	Title         string `gorm:"size:255"`
	Slug          string `gorm:"uniqueIndex;size:255"`
	Description   string `gorm:"size:2048"`
	CoverImageURL string `gorm:"size:512"`
	Status        string `gorm:"size:16;index;default:draft"`
	TrainerID     uint   `gorm:"index"`
	Trainer       User   `gorm:"foreignKey:TrainerID"`

	Slides      []Slide      `gorm:"constraint:OnDelete:CASCADE"`
	Enrollments []Enrollment `gorm:"constraint:OnDelete:CASCADE"`
}

// Slide is an ordered content unit whose file lives in object storage.
// FileURL holds the object key, not a full URL.
type Slide struct {
	gorm.Model
	CourseID         uint   `gorm:"index"`
	Title            string `gorm:"size:255"`
	Description      string `gorm:"size:1024"`
	Position         int    `gorm:"index"`
	FileURL          string `gorm:"size:512"`
	FileType         string `gorm:"size:64"`
	OriginalFilename string `gorm:"size:255"`
}

// Enrollment links one trainee to one course. Progress and Status are
// derived from SlideProgress rows, never independently authoritative.
type Enrollment struct {
	gorm.Model
	TraineeID   uint   `gorm:"uniqueIndex:idx_enrollment_trainee_course"`
	CourseID    uint   `gorm:"uniqueIndex:idx_enrollment_trainee_course"`
	Course      Course `gorm:"foreignKey:CourseID"`
	Status      string `gorm:"size:16;default:active"`
	Progress    int    `gorm:"default:0"`
	EnrolledAt  time.Time
	CompletedAt *time.Time
}

// SlideProgress is the per-trainee, per-slide completion record and the
// source of truth for enrollment progress.
type SlideProgress struct {
	gorm.Model
	TraineeID   uint `gorm:"uniqueIndex:idx_progress_trainee_slide"`
	SlideID     uint `gorm:"uniqueIndex:idx_progress_trainee_slide"`
	Slide       Slide
	Completed   bool
	CompletedAt *time.Time
}

// Note is a free-text annotation by a trainee on a slide, visible only
// to its creator.
type Note struct {
	gorm.Model
	TraineeID uint `gorm:"index"`
	SlideID   uint `gorm:"index"`
	Slide     Slide
	Content   string `gorm:"type:text"`
}

// Achievement is a badge definition. Criteria is a JSONB document of
// the form {"type": "...", "threshold": N}.
type Achievement struct {
	gorm.Model
	Title       string         `gorm:"size:128"`
	Description string         `gorm:"size:512"`
	Icon        string         `gorm:"size:128"`
	Criteria    datatypes.JSON `gorm:"type:jsonb"`
}

// AchievementCriteria is the decoded shape of Achievement.Criteria.
type AchievementCriteria struct {
	Type      string `json:"type"`
	Threshold int    `json:"threshold"`
}

// UserAchievement records a minted badge. The unique index makes
// repeated evaluation idempotent.
type UserAchievement struct {
	gorm.Model
	UserID        uint `gorm:"uniqueIndex:idx_user_achievement"`
	AchievementID uint `gorm:"uniqueIndex:idx_user_achievement"`
	Achievement   Achievement
	EarnedAt      time.Time
}

// LearningStreak counts consecutive days with qualifying activity.
// LastActivityDate carries date granularity only.
type LearningStreak struct {
	gorm.Model
	UserID           uint `gorm:"uniqueIndex"`
	CurrentStreak    int
	LongestStreak    int
	LastActivityDate time.Time
}

// AllModels lists every model for AutoMigrate, ordered so foreign key
// targets migrate first.
func AllModels() []any {
	return []any{
		&User{},
		&Course{},
		&Slide{},
		&Enrollment{},
		&SlideProgress{},
		&Note{},
		&Achievement{},
		&UserAchievement{},
		&LearningStreak{},
	}
}
