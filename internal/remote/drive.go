package remote

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/chatrelay/internal/googleauth"
	"github.com/soyeahso/chatrelay/internal/version"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveScope is the OAuth scope needed for uploads. drive.file limits
// access to files this application created.
const DriveScope = drive.DriveFileScope

// Drive stores objects as files in a Google Drive folder.
type Drive struct {
	svc      *drive.Service
	folderID string
}

// NewDrive wraps an existing Drive service. An empty folderID uploads to
// the root of My Drive.
func NewDrive(svc *drive.Service, folderID string) *Drive {
	return &Drive{svc: svc, folderID: folderID}
}

// NewDriveFromFiles authorizes with a client secrets file and a cached
// token written by `chatrelay auth drive`.
func NewDriveFromFiles(ctx context.Context, credentialsFile, tokenFile, folderID string) (*Drive, error) {
	client, err := googleauth.HTTPClient(ctx, credentialsFile, tokenFile, DriveScope)
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, option.WithHTTPClient(client), option.WithUserAgent(version.UserAgent()))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	return NewDrive(svc, folderID), nil
}

func (d *Drive) Name() string { return "drive" }

// Put updates the content of a same-named file in the folder if one exists,
// otherwise creates it.
func (d *Drive) Put(ctx context.Context, name, contentType string, data []byte) error {
	existing, err := d.find(ctx, name)
	if err != nil {
		return err
	}

	media := googleapi.ContentType(contentType)
	if existing != "" {
		_, err = d.svc.Files.Update(existing, &drive.File{}).
			Media(bytes.NewReader(data), media).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("update %s: %w", name, err)
		}
		return nil
	}

	file := &drive.File{Name: name, MimeType: contentType}
	if d.folderID != "" {
		file.Parents = []string{d.folderID}
	}
	if _, err := d.svc.Files.Create(file).Media(bytes.NewReader(data), media).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	return nil
}

func (d *Drive) find(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	if d.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(d.folderID))
	}
	res, err := d.svc.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", name, err)
	}
	if len(res.Files) == 0 {
		return "", nil
	}
	return res.Files[0].Id, nil
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}
