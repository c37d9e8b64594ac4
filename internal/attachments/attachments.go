// Package attachments stores the files a visitor uploads during a booking:
// the optional case file and the bank transfer proof.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Kind names the slot an upload fills in the booking session.
type Kind string

const (
	KindCaseFile      Kind = "attachment"
	KindTransferProof Kind = "transfer-proof"
)

// ParseKind validates a kind taken from a URL.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindCaseFile, KindTransferProof:
		return Kind(raw), nil
	}
	return "", fmt.Errorf("attachments: unknown kind %q", raw)
}

var (
	ErrEmpty       = errors.New("attachments: empty file")
	ErrTooLarge    = errors.New("attachments: file too large")
	ErrUnsupported = errors.New("attachments: unsupported file type")
	ErrNotFound    = errors.New("attachments: not found")
)

// Ref points at a stored upload. It is what the session keeps; the bytes
// live in the Store.
type Ref struct {
	Key         string    `json:"key"`
	Kind        Kind      `json:"kind"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Store persists uploads. Release must be safe to call for refs that were
// already released.
//
// An upload expires after Policy.Retention unless Keep marks it as part of
// a booked appointment, so files of abandoned sessions do not outlive them.
type Store interface {
	Put(ctx context.Context, owner string, kind Kind, filename string, data []byte) (Ref, error)
	Open(ctx context.Context, ref Ref) (io.ReadCloser, error)
	Release(ctx context.Context, ref Ref) error
	Keep(ctx context.Context, ref Ref) error
}

// Object tag recording whether an upload belongs to a booking yet.
const (
	StateTag     = "zyta-upload"
	StatePending = "pending"
	StateBooked  = "booked"
)

// Policy validates an upload before it reaches a Store.
type Policy struct {
	MaxBytes int64
	// Retention bounds how long an upload nobody kept is stored. Zero
	// keeps uploads until released.
	Retention time.Duration
}

// Check detects the content type of data and rejects files that do not fit
// kind. Transfer proofs must be images; case files may also be PDFs.
func (p Policy) Check(kind Kind, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if p.MaxBytes > 0 && int64(len(data)) > p.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), p.MaxBytes)
	}
	mt := mimetype.Detect(data)
	contentType := mt.String()
	isImage := strings.HasPrefix(contentType, "image/")
	switch kind {
	case KindTransferProof:
		if !isImage {
			return "", fmt.Errorf("%w: %s", ErrUnsupported, contentType)
		}
	case KindCaseFile:
		if !isImage && !mt.Is("application/pdf") {
			return "", fmt.Errorf("%w: %s", ErrUnsupported, contentType)
		}
	default:
		return "", fmt.Errorf("attachments: unknown kind %q", kind)
	}
	return contentType, nil
}

const keyPrefix = "widget"

func objectKey(owner string, kind Kind, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return fmt.Sprintf("%s/%s/%s/%s-%s", keyPrefix, owner, kind, uuid.New().String(), name)
}
