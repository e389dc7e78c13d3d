// Package media normalizes the two photo strategies (live capture and file
// selection) into a single attachment representation.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jcrioszam/red-ciudadana-sub001/device"
)

const (
	// MaxPhotoBytes is the ceiling for any attached photo.
	MaxPhotoBytes = 5 * 1024 * 1024

	captureJPEGQuality = 88
)

var (
	ErrPhotoTooLarge       = errors.New("photo exceeds the 5 MB limit")
	ErrUnsupportedType     = errors.New("photo must be an image")
	ErrCaptureReleased     = errors.New("capture session already released")
	ErrCaptureNotAvailable = errors.New("no frame available to capture")
)

// Attachment is the normalized photo representation carried by a draft.
type Attachment struct {
	Bytes        []byte
	MimeType     string
	OriginalName string
	SizeBytes    int64
}

// ValidateFile checks a selected file against the size ceiling and the
// image/* MIME prefix and returns the normalized attachment. The input is
// never mutated; a rejected file produces no attachment.
func ValidateFile(name, mimeType string, data []byte) (*Attachment, error) {
	if len(data) > MaxPhotoBytes {
		return nil, ErrPhotoTooLarge
	}
	mimeType = strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if mimeType == "" || mimeType == "application/octet-stream" {
		// Pickers without type metadata; sniff the content instead.
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, ErrUnsupportedType
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("foto-%s.jpg", uuid.NewString()[:8])
	}
	return &Attachment{
		Bytes:        data,
		MimeType:     mimeType,
		OriginalName: name,
		SizeBytes:    int64(len(data)),
	}, nil
}

// CaptureSession owns an open camera stream. The stream is released exactly
// once no matter how the session ends: successful capture, explicit cancel,
// backward navigation, or controller teardown all route through Release.
type CaptureSession struct {
	stream device.Stream

	mu       sync.Mutex
	released bool
	closeErr error
}

// OpenCapture opens the environment-facing camera. A nil camera is reported
// as not supported so callers can fall back to the file picker.
func OpenCapture(ctx context.Context, cam device.Camera) (*CaptureSession, error) {
	if cam == nil {
		return nil, device.NewError(device.ReasonNotSupported, "no live camera available")
	}
	stream, err := cam.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &CaptureSession{stream: stream}, nil
}

// Capture snapshots the current frame, encodes it as JPEG at the fixed
// quality factor, and releases the stream. The session is unusable after
// Capture regardless of the outcome.
func (s *CaptureSession) Capture(ctx context.Context) (*Attachment, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil, ErrCaptureReleased
	}
	stream := s.stream
	s.mu.Unlock()

	frame, frameErr := stream.Frame(ctx)
	if err := s.Release(); err != nil {
		return nil, err
	}
	if frameErr != nil {
		return nil, frameErr
	}
	if frame == nil {
		return nil, ErrCaptureNotAvailable
	}

	buffer := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buffer, frame, &jpeg.Options{Quality: captureJPEGQuality}); err != nil {
		return nil, err
	}
	data := buffer.Bytes()
	if len(data) > MaxPhotoBytes {
		return nil, ErrPhotoTooLarge
	}
	return &Attachment{
		Bytes:        data,
		MimeType:     "image/jpeg",
		OriginalName: fmt.Sprintf("captura-%s.jpg", uuid.NewString()[:8]),
		SizeBytes:    int64(len(data)),
	}, nil
}

// Release tears down the stream. Safe to call multiple times; only the
// first call closes the stream.
func (s *CaptureSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return s.closeErr
	}
	s.released = true
	s.closeErr = s.stream.Close()
	return s.closeErr
}

// Released reports whether the stream has been torn down.
func (s *CaptureSession) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
