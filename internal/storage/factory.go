// Package storage builds the configured ports.StorageProvider.
package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"cardpress/internal/adapters/storage/gdrive"
	"cardpress/internal/adapters/storage/localfs"
	"cardpress/internal/pkg/config"
	"cardpress/internal/ports"
)

// DriveScopes are the OAuth scopes the Drive provider and the gdrive-auth
// helper request.
var DriveScopes = []string{drive.DriveFileScope}

// DriveOAuthConfig is the OAuth client shared by the provider and the
// gdrive-auth helper.
func DriveOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       DriveScopes,
		RedirectURL:  redirectURL,
	}
}

func NewProvider(ctx context.Context, cfg config.Storage) (ports.StorageProvider, error) {
	switch cfg.Provider {
	case "", "localfs":
		if cfg.LocalRoot == "" {
			return nil, fmt.Errorf("localfs storage needs STORAGE_LOCAL_ROOT")
		}
		return localfs.New(cfg.LocalRoot), nil
	case "gdrive":
		return newGDriveProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

func newGDriveProvider(ctx context.Context, cfg config.Storage) (ports.StorageProvider, error) {
	conf := DriveOAuthConfig(cfg.GDriveClientID, cfg.GDriveClientSecret, "")
	// The token source refreshes with this context for the life of the
	// process, so it must not be request scoped.
	httpClient := conf.Client(context.WithoutCancel(ctx), &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken})

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}
