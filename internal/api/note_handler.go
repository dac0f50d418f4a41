package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/api/middleware"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/errcode"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/tasks"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/textimprove"
)

var errInvalidNoteID = errors.New("invalid note id")

// NoteImprover rewrites note text through the external API; tests
// substitute a fake.
type NoteImprover interface {
	Enabled() bool
	Improve(ctx context.Context, text string) (string, error)
}

// NoteHandler serves trainee note CRUD. Notes are visible only to
// their creator: a note that exists but belongs to someone else is
// indistinguishable from a missing one (404 in both cases).
type NoteHandler struct {
	db          *gorm.DB
	asynqClient TaskEnqueuer
	improver    NoteImprover
}

// NewNoteHandler constructs the handler.
func NewNoteHandler(db *gorm.DB, asynqClient TaskEnqueuer, improver NoteImprover) *NoteHandler {
	return &NoteHandler{
		db:          db,
		asynqClient: asynqClient,
		improver:    improver,
	}
}

type createNoteRequest struct {
	SlideID uint   `json:"slideId" binding:"required"`
	Content string `json:"content" binding:"required,max=10000"`
}

type updateNoteRequest struct {
	Content string `json:"content" binding:"required,max=10000"`
}

type noteResponse struct {
	ID        uint      `json:"id"`
	SlideID   uint      `json:"slideId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newNoteResponse(note database.Note) noteResponse {
	return noteResponse{
		ID:        note.ID,
		SlideID:   note.SlideID,
		Content:   note.Content,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

// CreateNote attaches a note to a slide in a course the trainee is
// enrolled in.
func (h *NoteHandler) CreateNote(c *gin.Context) {
	var req createNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	traineeID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var slide database.Slide
	if err := h.db.WithContext(ctx).First(&slide, req.SlideID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "slide not found")
			return
		}
		Internal(c, "failed to load slide")
		return
	}

	var enrollment database.Enrollment
	if err := h.db.WithContext(ctx).
		Where("trainee_id = ? AND course_id = ?", traineeID, slide.CourseID).
		First(&enrollment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Error(c, http.StatusForbidden, errcode.NotEnrolled, "not enrolled in this course")
			return
		}
		Internal(c, "failed to check enrollment")
		return
	}

	note := database.Note{
		TraineeID: traineeID,
		SlideID:   req.SlideID,
		Content:   req.Content,
	}
	if err := h.db.WithContext(ctx).Create(&note).Error; err != nil {
		Internal(c, "failed to create note")
		return
	}

	// Notes count toward achievements; failures here never fail the
	// request.
	if h.asynqClient != nil {
		correlationID := middleware.GetCorrelationID(c)
		task, err := tasks.NewCompletionRecordedTask(traineeID, slide.CourseID, tasks.EventNoteWritten, correlationID)
		if err != nil {
			logger.Error("create note task failed", slog.Any("error", err))
		} else if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5)); err != nil {
			logger.Error("enqueue note task failed", slog.Any("error", err))
		}
	}

	c.JSON(http.StatusCreated, newNoteResponse(note))
}

// ListNotes lists the trainee's notes, optionally filtered by slide.
func (h *NoteHandler) ListNotes(c *gin.Context) {
	traineeID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	query := h.db.WithContext(c.Request.Context()).
		Where("trainee_id = ?", traineeID).
		Order("created_at DESC")
	if slideID := c.Query("slideId"); slideID != "" {
		id, err := strconv.ParseUint(slideID, 10, 64)
		if err != nil {
			BadRequest(c, "invalid slide id")
			return
		}
		query = query.Where("slide_id = ?", uint(id))
	}

	var notes []database.Note
	if err := query.Find(&notes).Error; err != nil {
		Internal(c, "failed to list notes")
		return
	}

	items := make([]noteResponse, 0, len(notes))
	for _, note := range notes {
		items = append(items, newNoteResponse(note))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetNote returns one of the trainee's notes.
func (h *NoteHandler) GetNote(c *gin.Context) {
	h.withOwnedNote(c, func(ctx context.Context, note *database.Note) {
		c.JSON(http.StatusOK, newNoteResponse(*note))
	})
}

// UpdateNote replaces the note body.
func (h *NoteHandler) UpdateNote(c *gin.Context) {
	var req updateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	h.withOwnedNote(c, func(ctx context.Context, note *database.Note) {
		if err := h.db.WithContext(ctx).Model(note).Update("content", req.Content).Error; err != nil {
			Internal(c, "failed to update note")
			return
		}
		note.Content = req.Content
		c.JSON(http.StatusOK, newNoteResponse(*note))
	})
}

// DeleteNote removes one of the trainee's notes.
func (h *NoteHandler) DeleteNote(c *gin.Context) {
	h.withOwnedNote(c, func(ctx context.Context, note *database.Note) {
		if err := h.db.WithContext(ctx).Delete(&database.Note{}, note.ID).Error; err != nil {
			Internal(c, "failed to delete note")
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// ImproveNote rewrites the note body through the text-improvement API.
func (h *NoteHandler) ImproveNote(c *gin.Context) {
	if h.improver == nil || !h.improver.Enabled() {
		Error(c, http.StatusServiceUnavailable, errcode.UpstreamError, "text improvement is not configured")
		return
	}

	h.withOwnedNote(c, func(ctx context.Context, note *database.Note) {
		logger := middleware.LoggerFromContext(c)

		improved, err := h.improver.Improve(ctx, note.Content)
		if err != nil {
			logger.Error("improve note failed", slog.Any("error", err))
			Error(c, http.StatusBadGateway, errcode.UpstreamError, "text improvement failed")
			return
		}

		if err := h.db.WithContext(ctx).Model(note).Update("content", improved).Error; err != nil {
			Internal(c, "failed to save improved note")
			return
		}
		note.Content = improved
		c.JSON(http.StatusOK, newNoteResponse(*note))
	})
}

// withOwnedNote loads the note scoped to the authenticated trainee and
// runs fn on it. Missing and not-owned collapse into the same 404.
func (h *NoteHandler) withOwnedNote(c *gin.Context, fn func(ctx context.Context, note *database.Note)) {
	traineeID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	note, err := h.getNoteForTrainee(c.Request.Context(), c.Param("id"), traineeID)
	if err != nil {
		switch {
		case errors.Is(err, errInvalidNoteID):
			BadRequest(c, "invalid note id")
		case errors.Is(err, gorm.ErrRecordNotFound):
			NotFound(c, "note not found")
		default:
			Internal(c, "failed to query note")
		}
		return
	}

	fn(c.Request.Context(), note)
}

func (h *NoteHandler) getNoteForTrainee(ctx context.Context, idParam string, traineeID uint) (*database.Note, error) {
	noteID, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		return nil, errInvalidNoteID
	}

	var note database.Note
	if err := h.db.WithContext(ctx).
		Where("id = ? AND trainee_id = ?", uint(noteID), traineeID).
		First(&note).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

var _ NoteImprover = (*textimprove.Client)(nil)
