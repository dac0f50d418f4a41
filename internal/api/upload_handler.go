package api

import (
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/errcode"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/storage"
)

// MaxUploadBytes caps a single multipart upload.
const MaxUploadBytes = 5 << 20

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// UploadHandler stores image files in the object store under a
// caller-selected folder. Files are scanned when a clamd address is
// configured.
type UploadHandler struct {
	storage   ObjectStore
	logger    *slog.Logger
	clamdAddr string
	urlTTL    time.Duration
}

func NewUploadHandler(storageClient ObjectStore, logger *slog.Logger, clamdAddr string) *UploadHandler {
	return &UploadHandler{
		storage:   storageClient,
		logger:    logger,
		clamdAddr: clamdAddr,
		urlTTL:    time.Hour,
	}
}

// Upload accepts a multipart "file" plus a "type" field naming the
// destination folder and returns the stored object key with a
// presigned read URL.
func (h *UploadHandler) Upload(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size > MaxUploadBytes {
		Error(c, http.StatusRequestEntityTooLarge, errcode.InvalidInput, "file exceeds 5MB limit")
		return
	}

	contentType := file.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		BadRequest(c, "only png, jpeg and webp images are accepted")
		return
	}

	folder := c.DefaultPostForm("type", storage.FolderUploads)
	if !storage.IsAllowedFolder(folder) {
		BadRequest(c, "unknown upload type")
		return
	}

	if h.clamdAddr != "" {
		if ok := h.scanFile(c, file); !ok {
			return
		}
	}

	objectKey, err := storage.BuildObjectKey(folder, file.Filename, time.Now())
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer reader.Close()

	ctx := c.Request.Context()
	if _, err := h.storage.UploadFile(ctx, objectKey, reader, file.Size, contentType); err != nil {
		h.logger.Error("upload file", slog.String("object_key", objectKey), slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	url, err := h.storage.GeneratePresignedURL(ctx, objectKey, h.urlTTL)
	if err != nil {
		h.logger.Error("presign uploaded file", slog.String("object_key", objectKey), slog.Any("error", err))
		url = ""
	}

	c.JSON(http.StatusCreated, gin.H{"objectKey": objectKey, "url": url})
}

// scanFile streams the upload through clamd; replies and returns false
// when the file is rejected or scanning fails.
func (h *UploadHandler) scanFile(c *gin.Context, file *multipart.FileHeader) bool {
	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return false
	}

	clamdClient := clamd.NewClamd(h.clamdAddr)
	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(reader, abortChan)
	reader.Close()
	if err != nil {
		h.logger.Error("scan file", slog.Any("error", err))
		Internal(c, "failed to scan file")
		return false
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			BadRequest(c, "malicious file detected")
			return false
		}
	}
	return true
}
