package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"
)

// Folders an object key may be stored under.
const (
	FolderSlides        = "slides"
	FolderCourseCovers  = "course-covers"
	FolderProfileImages = "profile-images"
	FolderUploads       = "uploads"
)

var allowedFolders = map[string]bool{
	FolderSlides:        true,
	FolderCourseCovers:  true,
	FolderProfileImages: true,
	FolderUploads:       true,
}

// IsAllowedFolder reports whether the folder is one of the known prefixes.
func IsAllowedFolder(folder string) bool {
	return allowedFolders[folder]
}

// BuildObjectKey derives the storage key for an uploaded file:
// {folder}/{epochMillis}-{sanitizedOriginalFilename}.
func BuildObjectKey(folder, originalFilename string, now time.Time) (string, error) {
	if !IsAllowedFolder(folder) {
		return "", fmt.Errorf("invalid upload folder %q", folder)
	}
	name := SanitizeFilename(originalFilename)
	if name == "" {
		return "", fmt.Errorf("invalid filename %q", originalFilename)
	}
	return fmt.Sprintf("%s/%d-%s", folder, now.UnixMilli(), name), nil
}

// SanitizeFilename strips directory components and replaces anything
// outside [a-zA-Z0-9._-] with a dash. Keys derive from timestamp plus
// filename, so collisions are not a practical concern.
func SanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r) && r < 128:
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	out := strings.Trim(b.String(), "-.")
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}
