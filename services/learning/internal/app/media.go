package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/AniketChoudhary834/LMS/internal/apperr"
	"github.com/AniketChoudhary834/LMS/pkg/domain"
	"github.com/AniketChoudhary834/LMS/pkg/storage"
)

const (
	mediaPrefix = "media/"
	sniffLen    = 3072
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// Upload is one streamed file. Size is -1 when unknown.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// MediaResult locates an uploaded object.
type MediaResult struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// UploadMedia streams the upload into object storage under a fresh id.
func (a *App) UploadMedia(ctx context.Context, caller domain.Identity, up Upload) (MediaResult, error) {
	if !caller.IsInstructor() {
		return MediaResult{}, ErrInstructorOnly
	}
	if up.Body == nil {
		return MediaResult{}, ErrFileRequired
	}

	body := bufio.NewReaderSize(up.Body, sniffLen)
	head, err := body.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return MediaResult{}, mediaReadError(err)
	}
	if len(head) == 0 {
		return MediaResult{}, ErrFileRequired
	}
	detected := mimetype.Detect(head)

	contentType := strings.TrimSpace(up.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detected.String()
	}
	ext := strings.ToLower(path.Ext(up.Filename))
	if !extPattern.MatchString(ext) {
		ext = detected.Extension()
	}

	publicID := uuid.NewString() + ext
	if _, err := a.objects.Put(ctx, mediaPrefix+publicID, body, up.Size, contentType); err != nil {
		return MediaResult{}, mediaReadError(err)
	}
	url, err := a.objects.URL(ctx, mediaPrefix+publicID)
	if err != nil {
		return MediaResult{}, apperr.Wrap(ErrStorage.Kind, ErrStorage.Message, err)
	}
	return MediaResult{URL: url, PublicID: publicID}, nil
}

// DeleteMedia removes an uploaded object by its public id.
func (a *App) DeleteMedia(ctx context.Context, caller domain.Identity, publicID string) error {
	if !caller.IsInstructor() {
		return ErrInstructorOnly
	}
	if !validPublicID(publicID) {
		return ErrInvalidPublicID
	}
	err := a.objects.Delete(ctx, mediaPrefix+publicID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrObjectNotFound):
		return ErrMediaNotFound
	default:
		return apperr.Wrap(ErrStorage.Kind, ErrStorage.Message, err)
	}
}

// validPublicID accepts "<uuid>" with an optional short extension.
func validPublicID(id string) bool {
	base, ext := id, ""
	if i := strings.IndexByte(id, '.'); i >= 0 {
		base, ext = id[:i], id[i:]
	}
	if ext != "" && !extPattern.MatchString(ext) {
		return false
	}
	parsed, err := uuid.Parse(base)
	return err == nil && parsed.String() == base
}

// mediaReadError separates oversized bodies from storage failures.
func mediaReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Wrap(ErrFileTooLarge.Kind, ErrFileTooLarge.Message, err)
	}
	return apperr.Wrap(ErrStorage.Kind, ErrStorage.Message, err)
}
