package bootstrap

import (
	"context"
	"io"

	"chatreel/internal/config"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/signing"
	"chatreel/internal/storage"
)

// Storage bundles the artifact backend with the link issuer built for it.
type Storage struct {
	Provider storage.Provider
	Issuer   *signing.Issuer
	// Links is set when links are HMAC-signed and served by the API itself.
	Links *signing.HMACSigner
}

// Close releases provider clients that hold connections.
func (s Storage) Close() error {
	if c, ok := s.Provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func OpenStorage(ctx context.Context, cfg config.Config, log *logger.Logger) (Storage, error) {
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		return Storage{}, err
	}
	signer, err := storage.NewSigner(sp, cfg.Signing)
	if err != nil {
		return Storage{}, err
	}

	out := Storage{Provider: sp, Issuer: signing.NewIssuer(signer)}
	if hs, ok := signer.(*signing.HMACSigner); ok {
		out.Links = hs
	}
	log.Info("storage provider initialized", "provider", sp.Provider(), "native_signing", out.Links == nil)
	return out, nil
}
