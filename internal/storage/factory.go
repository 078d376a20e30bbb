package storage

import (
	"context"
	"os"

	gcstorage "cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"chatreel/internal/adapters/storage/gcs"
	"chatreel/internal/adapters/storage/gdrive"
	"chatreel/internal/adapters/storage/localfs"
	"chatreel/internal/config"
	"chatreel/internal/pkg/errors"
	"chatreel/internal/signing"
)

// NewProvider builds the configured storage backend.
func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case config.StorageLocalFS, "":
		if cfg.LocalRoot == "" {
			return nil, errors.ValidationField("STORAGE_LOCAL_ROOT", "required for localfs")
		}
		return localfs.New(cfg.LocalRoot), nil

	case config.StorageGDrive:
		return newGDriveProvider(ctx, cfg)

	case config.StorageGCS:
		return newGCSProvider(ctx, cfg)

	default:
		return nil, errors.ValidationField("STORAGE_PROVIDER", "unknown storage provider: "+cfg.Provider)
	}
}

// NewSigner picks the provider's native signer when it has one and falls
// back to HMAC links served by the API's object route.
func NewSigner(p Provider, cfg config.SigningConfig) (signing.Signer, error) {
	if native, ok := p.(URLSigner); ok {
		return signing.NewProviderSigner(native), nil
	}
	s, err := signing.NewHMACSigner(cfg.PublicBaseURL, cfg.Secret)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newGDriveProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	if cfg.GDriveClientID == "" || cfg.GDriveClientSecret == "" || cfg.GDriveRefreshToken == "" {
		return nil, errors.ValidationField("GDRIVE_REFRESH_TOKEN", "gdrive needs client id, secret and refresh token")
	}

	conf := &oauth2.Config{
		ClientID:     cfg.GDriveClientID,
		ClientSecret: cfg.GDriveClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrap(err, "storage.gdrive", "create drive service")
	}
	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}

func newGCSProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	if cfg.GCSBucket == "" {
		return nil, errors.ValidationField("GCS_BUCKET", "required for gcs")
	}

	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}
	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "storage.gcs", "create gcs client")
	}

	signer, err := gcsSigner(cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	return gcs.New(client, cfg.GCSBucket, signer), nil
}

// gcsSigner reads an explicit service-account key when one is configured.
func gcsSigner(cfg config.StorageConfig) (gcs.Signer, error) {
	s := gcs.Signer{GoogleAccessID: cfg.GCSSigningAccount}
	if cfg.GCSSigningKeyFile == "" {
		return s, nil
	}
	data, err := os.ReadFile(cfg.GCSSigningKeyFile)
	if err != nil {
		return s, errors.Wrap(err, "storage.gcs", "read signing key")
	}
	jwt, err := google.JWTConfigFromJSON(data)
	if err != nil {
		return s, errors.WrapWithCode(err, errors.CodeValidation, "storage.gcs", "parse signing key")
	}
	if s.GoogleAccessID == "" {
		s.GoogleAccessID = jwt.Email
	}
	s.PrivateKey = jwt.PrivateKey
	return s, nil
}
