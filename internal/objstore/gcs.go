package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gstorage "google.golang.org/api/storage/v1"

	"finsight/internal/gcp"
	"finsight/internal/log"
)

// GCS is a bucket in Google Cloud Storage. Objects are expected to be
// publicly readable through bucket-level IAM.
type GCS struct {
	svc     *gstorage.Service
	bucket  string
	baseURL string
	logger  *log.Logger
}

// NewGCS creates the bucket client. baseURL defaults to
// https://storage.googleapis.com/{bucket}. Extra options override the
// resolved credentials.
func NewGCS(ctx context.Context, bucket, baseURL string, creds gcp.Credentials, logger *log.Logger, extra ...option.ClientOption) (*GCS, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("missing GCS bucket name")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentObjects)

	opts := extra
	if len(opts) == 0 {
		var err error
		opts, err = gcp.ClientOptions(ctx, creds, logger, gstorage.DevstorageReadWriteScope)
		if err != nil {
			return nil, err
		}
	}
	svc, err := gstorage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCS{svc: svc, bucket: bucket, baseURL: strings.TrimSuffix(baseURL, "/"), logger: logger}, nil
}

func (g *GCS) Put(ctx context.Context, p, contentType string, body io.Reader) (string, error) {
	if p == "" || strings.Contains(p, "..") {
		return "", ErrInvalidPath
	}
	obj := &gstorage.Object{
		Name:         p,
		ContentType:  contentType,
		CacheControl: "public, max-age=3600",
	}
	_, err := g.svc.Objects.Insert(g.bucket, obj).
		Media(body, googleapi.ContentType(contentType)).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("upload object %s: %w", p, err)
	}
	g.logger.DebugContext(ctx, "Object uploaded", log.FieldObjectPath, p)
	return g.baseURL + "/" + p, nil
}

func (g *GCS) Delete(ctx context.Context, publicURL string) error {
	p, err := g.PathOf(publicURL)
	if err != nil {
		return err
	}
	err = g.svc.Objects.Delete(g.bucket, p).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete object %s: %w", p, err)
	}
	return nil
}

func (g *GCS) PathOf(publicURL string) (string, error) {
	return pathOf(g.baseURL, publicURL)
}
