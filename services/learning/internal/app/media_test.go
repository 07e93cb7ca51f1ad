package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AniketChoudhary834/LMS/internal/apperr"
)

type failingObjects struct{}

func (failingObjects) Put(context.Context, string, io.Reader, int64, string) (int64, error) {
	return 0, errors.New("connection reset")
}
func (failingObjects) URL(context.Context, string) (string, error) { return "", nil }
func (failingObjects) Delete(context.Context, string) error { return errors.New("connection reset") }

func TestUploadMediaStoresUnderFreshID(t *testing.T) {
	env := newTestApp(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

	res, err := env.app.UploadMedia(context.Background(), instructor, Upload{
		Filename: "Cover.PNG",
		Size:     -1,
		Body:     bytes.NewReader(png),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasSuffix(res.PublicID, ".png") || !validPublicID(res.PublicID) {
		t.Fatalf("unexpected public id %q", res.PublicID)
	}
	if res.URL != "http://cdn.test/media/"+res.PublicID {
		t.Fatalf("unexpected url %q", res.URL)
	}
	data, contentType, ok := env.objects.Object("media/" + res.PublicID)
	if !ok || !bytes.Equal(data, png) {
		t.Fatalf("object not stored intact")
	}
	if contentType != "image/png" {
		t.Fatalf("expected sniffed content type, got %q", contentType)
	}

	if err := env.app.DeleteMedia(context.Background(), instructor, res.PublicID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if env.objects.Len() != 0 {
		t.Fatalf("object not deleted")
	}
	err = env.app.DeleteMedia(context.Background(), instructor, res.PublicID)
	assertKind(t, err, apperr.NotFound)
}

func TestUploadMediaKeepsDeclaredContentType(t *testing.T) {
	env := newTestApp(t)
	res, err := env.app.UploadMedia(context.Background(), instructor, Upload{
		Filename:    "lecture",
		ContentType: "video/mp4",
		Size:        5,
		Body:        strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, contentType, _ := env.objects.Object("media/" + res.PublicID); contentType != "video/mp4" {
		t.Fatalf("declared content type replaced: %q", contentType)
	}
	if !validPublicID(res.PublicID) {
		t.Fatalf("invalid public id %q", res.PublicID)
	}
}

func TestUploadMediaErrors(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()

	_, err := env.app.UploadMedia(ctx, student, Upload{Filename: "a.mp4", Body: strings.NewReader("x")})
	assertKind(t, err, apperr.Forbidden)

	_, err = env.app.UploadMedia(ctx, instructor, Upload{Filename: "a.mp4", Body: strings.NewReader("")})
	assertKind(t, err, apperr.Validation)

	limited := http.MaxBytesReader(httptest.NewRecorder(), io.NopCloser(strings.NewReader(strings.Repeat("x", 64))), 16)
	_, err = env.app.UploadMedia(ctx, instructor, Upload{Filename: "a.mp4", Size: -1, Body: limited})
	assertKind(t, err, apperr.PayloadTooLarge)
	if env.objects.Len() != 0 {
		t.Fatalf("oversized upload was stored")
	}

	env.app.objects = failingObjects{}
	_, err = env.app.UploadMedia(ctx, instructor, Upload{Filename: "a.mp4", Size: 1, Body: strings.NewReader("x")})
	assertKind(t, err, apperr.Upstream)
	err = env.app.DeleteMedia(ctx, instructor, "0b7c8f5e-8a3c-4f39-9a57-2f4f8c2d1e6a.mp4")
	assertKind(t, err, apperr.Upstream)
}

func TestValidPublicID(t *testing.T) {
	tests := map[string]bool{
		"0b7c8f5e-8a3c-4f39-9a57-2f4f8c2d1e6a":          true,
		"0b7c8f5e-8a3c-4f39-9a57-2f4f8c2d1e6a.mp4":      true,
		"0b7c8f5e-8a3c-4f39-9a57-2f4f8c2d1e6a.MP4":      false,
		"../secrets":                                    false,
		"0b7c8f5e-8a3c-4f39-9a57-2f4f8c2d1e6a.mp4/../x": false,
		"":                                              false,
	}
	for id, want := range tests {
		if got := validPublicID(id); got != want {
			t.Fatalf("validPublicID(%q) = %v, want %v", id, got, want)
		}
	}
	err := newTestApp(t).app.DeleteMedia(context.Background(), instructor, "../secrets")
	assertKind(t, err, apperr.Validation)
}
