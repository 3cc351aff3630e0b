package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// DefaultMaxBytes is the attachment size limit when none is configured.
const DefaultMaxBytes int64 = 10 << 20

// AllowedMIMETypes is the attachment allow-list, mapped to the extension
// stored files get. The static file server derives Content-Type from it.
var AllowedMIMETypes = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"application/pdf":    ".pdf",
	"text/plain":         ".txt",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

// activeContent lists sniffed types a browser would render as a document.
var activeContent = []string{"text/html", "image/svg+xml", "application/xhtml+xml"}

// Upload is an attachment received from a client.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Object references a stored attachment.
type Object struct {
	Key      string
	URL      string
	FileName string
	MIMEType string
}

// BlobStore persists attachments and returns where they can be fetched.
type BlobStore interface {
	Put(ctx context.Context, upload Upload) (*Object, error)
}

// LocalStore writes attachments to a directory served under a public base URL.
type LocalStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string, maxBytes int64) (*LocalStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}, nil
}

// Dir returns the directory files are written to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put validates the upload and writes it atomically under a random key.
func (s *LocalStore) Put(ctx context.Context, upload Upload) (*Object, error) {
	if upload.Size > s.maxBytes {
		return nil, tooLarge(s.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(upload.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, tooLarge(s.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mimeType := ResolveMIMEType(upload.ContentType, data)
	ext, ok := AllowedMIMETypes[mimeType]
	if !ok {
		return nil, notAllowed(mimeType)
	}
	detected := mimetype.Detect(data)
	for _, active := range activeContent {
		if detected.Is(active) {
			return nil, notAllowed(active)
		}
	}

	key := uuid.NewString() + ext
	if err := atomic.WriteFile(filepath.Join(s.dir, key), bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	return &Object{
		Key:      key,
		URL:      s.baseURL + "/" + key,
		FileName: path.Base(filepath.ToSlash(upload.FileName)),
		MIMEType: mimeType,
	}, nil
}

// ResolveMIMEType trusts the declared type unless it is missing or generic,
// in which case the content is sniffed.
func ResolveMIMEType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	detected := mimetype.Detect(data).String()
	if i := strings.Index(detected, ";"); i >= 0 {
		detected = detected[:i]
	}
	return detected
}

func notAllowed(mimeType string) error {
	return apperrors.NewValidationError(
		fmt.Sprintf("file type %s is not allowed", mimeType),
		map[string]any{"field": "file", "mimeType": mimeType},
	)
}

func tooLarge(limit int64) error {
	return apperrors.NewValidationError(
		fmt.Sprintf("file exceeds the %d byte limit", limit),
		map[string]any{"field": "file", "maxBytes": limit},
	)
}
