// infrastructure/drive_file_host.go
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/vitovidale/clip-processor-service/domain"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var (
	driveFileIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}$`)
	drivePathPattern   = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)
)

// DriveFileHost reads source videos from Drive and publishes transcripts and
// clips back to it.
type DriveFileHost struct {
	Service *drive.Service
}

// NewDriveFileHost builds the Drive service. An empty endpoint keeps the
// SDK default; a static token replaces application default credentials.
func NewDriveFileHost(ctx context.Context, endpoint, token string, opts ...option.ClientOption) (*DriveFileHost, error) {
	var base []option.ClientOption
	if endpoint != "" {
		base = append(base, option.WithEndpoint(endpoint))
	}
	if token != "" {
		base = append(base, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})))
	}
	svc, err := drive.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &DriveFileHost{Service: svc}, nil
}

// ParseSourceRef accepts a bare file id or a share link of the forms
// /file/d/{id}/..., open?id={id} and uc?id={id}.
func (h *DriveFileHost) ParseSourceRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", domain.NewValidationError("source.parse", "source reference is empty")
	}
	if driveFileIDPattern.MatchString(ref) {
		return ref, nil
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return "", domain.NewValidationError("source.parse", "unrecognized source reference %q", ref)
	}
	if m := drivePathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1], nil
	}
	if strings.HasSuffix(u.Path, "/open") || strings.HasSuffix(u.Path, "/uc") {
		if id := u.Query().Get("id"); driveFileIDPattern.MatchString(id) {
			return id, nil
		}
	}
	return "", domain.NewValidationError("source.parse", "unrecognized source reference %q", ref)
}

func (h *DriveFileHost) GetMetadata(ctx context.Context, fileID string) (*domain.FileMetadata, error) {
	f, err := h.Service.Files.Get(fileID).
		Fields("id", "name", "size", "mimeType", "parents").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, driveError("file_host.metadata", fileID, err)
	}
	meta := &domain.FileMetadata{ID: f.Id, Name: f.Name, Size: f.Size, MimeType: f.MimeType}
	if len(f.Parents) > 0 {
		meta.ParentID = f.Parents[0]
	}
	return meta, nil
}

// DownloadAsStream returns the file body. The caller closes it.
func (h *DriveFileHost) DownloadAsStream(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := h.Service.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, driveError("file_host.download", fileID, err)
	}
	return resp.Body, nil
}

// UploadFile creates a file from r. The SDK switches to a resumable upload
// once the content outgrows a single chunk.
func (h *DriveFileHost) UploadFile(ctx context.Context, name, mimeType, parentID string, r io.Reader) (string, error) {
	meta := &drive.File{Name: name, MimeType: mimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	created, err := h.Service.Files.Create(meta).
		Media(r, googleapi.ContentType(mimeType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", driveError("file_host.upload", name, err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("upload of %s returned no file id", name)
	}
	return created.Id, nil
}

// driveError maps a missing file to NotFound and leaves everything else for
// the caller to classify.
func driveError(op, subject string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return &domain.Error{Kind: domain.KindNotFound, Op: op, Message: fmt.Sprintf("file %s not found", subject), Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, subject, err)
}
