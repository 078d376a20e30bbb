// Package gcs stores artifacts in a Google Cloud Storage bucket and signs
// read URLs natively (V4).
package gcs

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"chatreel/internal/pkg/errors"
	"chatreel/internal/ports"
)

// Signer identifies the account that signs URLs. Zero value defers to the
// client's detected credentials.
type Signer struct {
	GoogleAccessID string
	PrivateKey     []byte
}

type Client struct {
	client *storage.Client
	bucket *storage.BucketHandle
	signer Signer
	now    func() time.Time
}

var (
	_ ports.StorageProvider = (*Client)(nil)
	_ ports.URLSigner       = (*Client)(nil)
)

func New(client *storage.Client, bucket string, signer Signer) *Client {
	return &Client{
		client: client,
		bucket: client.Bucket(bucket),
		signer: signer,
		now:    time.Now,
	}
}

func (c *Client) Provider() string { return "gcs" }

func (c *Client) Close() error { return c.client.Close() }

func key(objectKey string) (string, error) {
	k := strings.TrimLeft(strings.TrimSpace(objectKey), "/")
	if k == "" {
		return "", errors.Validation("object key is required")
	}
	return k, nil
}

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	k, err := key(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := c.bucket.Object(k).NewWriter(ctx)
	w.ContentType = in.ContentType
	n, err := io.Copy(w, in.Reader)
	if err != nil {
		// Cancelling before Close aborts the upload.
		cancel()
		_ = w.Close()
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUploadFailed, "gcs.put", "write object")
	}
	if err := w.Close(); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUploadFailed, "gcs.put", "finalize object")
	}
	return ports.PutObjectOutput{ObjectKey: k, Size: n}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	k, err := key(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	r, err := c.bucket.Object(k).NewReader(ctx)
	if err != nil {
		if stderrors.Is(err, storage.ErrObjectNotExist) {
			return nil, "", 0, errors.NotFound("object", k)
		}
		return nil, "", 0, errors.WrapWithCode(err, errors.CodeUnavailable, "gcs.get", "open object")
	}
	return r, r.Attrs.ContentType, r.Attrs.Size, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	k, err := key(objectKey)
	if err != nil {
		return err
	}
	if err := c.bucket.Object(k).Delete(ctx); err != nil && !stderrors.Is(err, storage.ErrObjectNotExist) {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "gcs.delete", "delete object")
	}
	return nil
}

// GetSignedURL mints a V4 GET URL valid for expiresIn.
func (c *Client) GetSignedURL(_ context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	k, err := key(objectKey)
	if err != nil {
		return ports.SignedURLOutput{}, err
	}
	if expiresIn <= 0 {
		return ports.SignedURLOutput{}, errors.Validation("signed url lifetime must be positive")
	}
	expires := c.now().UTC().Add(expiresIn)

	u, err := c.bucket.SignedURL(k, &storage.SignedURLOptions{
		GoogleAccessID: c.signer.GoogleAccessID,
		PrivateKey:     c.signer.PrivateKey,
		Method:         "GET",
		Expires:        expires,
		Scheme:         storage.SigningSchemeV4,
	})
	if err != nil {
		return ports.SignedURLOutput{}, errors.Wrap(err, "gcs.sign", "sign url")
	}
	return ports.SignedURLOutput{URL: u, ExpiresAt: expires}, nil
}
