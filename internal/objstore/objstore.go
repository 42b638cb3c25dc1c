// Package objstore stores avatar images in a public bucket. Objects live at
// "{userId}/{token}.{ext}" and are addressed by their public URL.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"finsight/internal/gcp"
	"finsight/internal/log"
)

var (
	ErrForeignURL  = errors.New("url does not belong to this bucket")
	ErrInvalidPath = errors.New("invalid object path")
)

// Bucket is a public object bucket.
type Bucket interface {
	// Put stores body at path and returns its public URL.
	Put(ctx context.Context, path, contentType string, body io.Reader) (string, error)
	// Delete removes the object behind publicURL. A missing object is not
	// an error.
	Delete(ctx context.Context, publicURL string) error
	// PathOf maps a public URL back to the object path.
	PathOf(publicURL string) (string, error)
}

type Config struct {
	Backend       string // local or gcs
	Dir           string
	PublicBaseURL string
	GCSBucket     string
	Credentials   gcp.Credentials
}

func Open(ctx context.Context, cfg Config, logger *log.Logger) (Bucket, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		b, err := NewLocal(cfg.Dir, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "gcs":
		b, err := NewGCS(ctx, cfg.GCSBucket, cfg.PublicBaseURL, cfg.Credentials, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported object store %q", cfg.Backend)
	}
}

// CheckPath validates an object path and that its first segment is the
// owner's user id.
func CheckPath(owner uuid.UUID, p string) error {
	if p == "" || strings.HasPrefix(p, "/") || path.Clean(p) != p {
		return ErrInvalidPath
	}
	dir, name := path.Split(p)
	if strings.TrimSuffix(dir, "/") != owner.String() {
		return fmt.Errorf("%w: object must live under the owner's directory", ErrInvalidPath)
	}
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `\:*?"<>|`) {
		return ErrInvalidPath
	}
	return nil
}

func pathOf(base, publicURL string) (string, error) {
	p, ok := strings.CutPrefix(publicURL, strings.TrimSuffix(base, "/")+"/")
	if !ok || p == "" {
		return "", ErrForeignURL
	}
	return p, nil
}
