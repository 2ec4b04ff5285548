// Package remote uploads transcript and document artifacts to an external
// file store. Uploads overwrite any existing object with the same name.
package remote

import (
	"context"
	"fmt"

	"github.com/soyeahso/chatrelay/internal/config"
)

// Store is a named-object sink. Put replaces an existing object of the same
// name; there are no partial writes.
type Store interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
	Name() string
}

// Open builds the store selected by cfg. The "none" driver yields a nil
// Store, which callers treat as uploads disabled.
func Open(ctx context.Context, cfg config.RemoteConfig, paths config.Paths) (Store, error) {
	switch cfg.Driver {
	case "none", "":
		return nil, nil
	case "dir":
		dir := cfg.Dir
		if dir == "" {
			dir = paths.Documents
		}
		return NewDir(dir), nil
	case "drive":
		creds := cfg.CredentialsFile
		if creds == "" {
			creds = paths.DriveCredentials()
		}
		token := cfg.TokenFile
		if token == "" {
			token = paths.Token("drive")
		}
		d, err := NewDriveFromFiles(ctx, creds, token, cfg.FolderID)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown remote driver %q", cfg.Driver)
	}
}
