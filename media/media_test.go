package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/jcrioszam/red-ciudadana-sub001/device"
)

type stubStream struct {
	frame  image.Image
	err    error
	closed int
}

func (s *stubStream) Frame(ctx context.Context) (image.Image, error) {
	return s.frame, s.err
}

func (s *stubStream) Close() error {
	s.closed++
	return nil
}

type stubCamera struct {
	stream *stubStream
	err    error
}

func (c *stubCamera) Open(ctx context.Context) (device.Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

func TestValidateFileAcceptsImage(t *testing.T) {
	data := []byte{0xff, 0xd8, 0xff, 0xe0}
	attachment, err := ValidateFile("bache.jpg", "image/jpeg", data)
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if attachment.OriginalName != "bache.jpg" {
		t.Fatalf("name = %q", attachment.OriginalName)
	}
	if attachment.MimeType != "image/jpeg" {
		t.Fatalf("mime = %q", attachment.MimeType)
	}
	if attachment.SizeBytes != int64(len(data)) {
		t.Fatalf("size = %d", attachment.SizeBytes)
	}
	if !bytes.Equal(attachment.Bytes, data) {
		t.Fatal("bytes altered")
	}
}

func TestValidateFileNormalizesMimeParameters(t *testing.T) {
	attachment, err := ValidateFile("foto.png", "Image/PNG; charset=binary", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if attachment.MimeType != "image/png" {
		t.Fatalf("mime = %q", attachment.MimeType)
	}
}

func TestValidateFileSniffsMissingMime(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, image.NewRGBA(image.Rect(0, 0, 2, 2)), nil); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	attachment, err := ValidateFile("", "", buf.Bytes())
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if !strings.HasPrefix(attachment.MimeType, "image/") {
		t.Fatalf("mime = %q", attachment.MimeType)
	}
	if attachment.OriginalName == "" {
		t.Fatal("expected a generated name")
	}
}

func TestValidateFileRejectsOversize(t *testing.T) {
	_, err := ValidateFile("grande.jpg", "image/jpeg", make([]byte, MaxPhotoBytes+1))
	if !errors.Is(err, ErrPhotoTooLarge) {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateFileAcceptsExactLimit(t *testing.T) {
	if _, err := ValidateFile("justo.jpg", "image/jpeg", make([]byte, MaxPhotoBytes)); err != nil {
		t.Fatalf("a file at exactly the limit must pass, got %v", err)
	}
}

func TestValidateFileRejectsNonImage(t *testing.T) {
	_, err := ValidateFile("doc.pdf", "application/pdf", []byte("%PDF-1.4"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenCaptureNilCamera(t *testing.T) {
	_, err := OpenCapture(context.Background(), nil)
	if device.ClassifyReason(err) != device.ReasonNotSupported {
		t.Fatalf("reason = %s", device.ClassifyReason(err))
	}
}

func TestCaptureReleasesStreamExactlyOnce(t *testing.T) {
	stream := &stubStream{frame: image.NewRGBA(image.Rect(0, 0, 4, 4))}
	session, err := OpenCapture(context.Background(), &stubCamera{stream: stream})
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}

	attachment, err := session.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if attachment.MimeType != "image/jpeg" {
		t.Fatalf("mime = %q", attachment.MimeType)
	}
	if len(attachment.Bytes) == 0 {
		t.Fatal("empty capture")
	}

	// Later teardown paths hit the same stream; it must stay closed once.
	_ = session.Release()
	_ = session.Release()
	if stream.closed != 1 {
		t.Fatalf("stream closed %d times", stream.closed)
	}
	if !session.Released() {
		t.Fatal("session not marked released")
	}
}

func TestCaptureOnFrameErrorStillReleases(t *testing.T) {
	stream := &stubStream{err: errors.New("sensor gone")}
	session, err := OpenCapture(context.Background(), &stubCamera{stream: stream})
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}

	if _, err := session.Capture(context.Background()); err == nil {
		t.Fatal("expected a frame error")
	}
	if stream.closed != 1 {
		t.Fatalf("stream closed %d times, a failed capture must still release", stream.closed)
	}
}

func TestCaptureAfterReleaseFails(t *testing.T) {
	stream := &stubStream{frame: image.NewRGBA(image.Rect(0, 0, 4, 4))}
	session, err := OpenCapture(context.Background(), &stubCamera{stream: stream})
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	_ = session.Release()

	if _, err := session.Capture(context.Background()); !errors.Is(err, ErrCaptureReleased) {
		t.Fatalf("err = %v", err)
	}
	if stream.closed != 1 {
		t.Fatalf("stream closed %d times", stream.closed)
	}
}
