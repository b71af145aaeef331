package oauth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joshp123/gotherm/internal/config"
)

var ErrBlobNotFound = errors.New("oauth: no state blob")

// BlobStore mirrors token state to object storage so a rebuilt host can
// recover its credential without re-running the browser flow.
type BlobStore interface {
	Load(ctx context.Context, provider string) ([]byte, error)
	Save(ctx context.Context, provider string, data []byte) error
}

// S3Store is the minio-backed BlobStore. Objects live at
// <prefix>/<provider>.json in a single bucket.
type S3Store struct {
	cli    *minio.Client
	bucket string
	prefix string
}

func NewS3Store(cfg config.OAuthConfig) (*S3Store, error) {
	if cfg.BlobEndpoint == "" || cfg.BlobBucket == "" {
		return nil, errors.New("oauth: blob endpoint and bucket are required")
	}
	if cfg.BlobAccessKeyFile == "" || cfg.BlobSecretKeyFile == "" {
		return nil, errors.New("oauth: blob credential files are required")
	}

	accessKey, err := loadSecret(cfg.BlobAccessKeyFile)
	if err != nil {
		return nil, err
	}
	secretKey, err := loadSecret(cfg.BlobSecretKeyFile)
	if err != nil {
		return nil, err
	}

	host, useTLS, err := splitEndpoint(cfg.BlobEndpoint)
	if err != nil {
		return nil, err
	}
	cli, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useTLS,
		Region: strings.TrimSpace(cfg.BlobRegion),
	})
	if err != nil {
		return nil, fmt.Errorf("oauth: s3 client: %w", err)
	}

	prefix := strings.TrimSpace(cfg.BlobPrefix)
	if prefix == "" {
		prefix = config.DefaultOAuthPrefix
	}
	return &S3Store{cli: cli, bucket: strings.TrimSpace(cfg.BlobBucket), prefix: prefix}, nil
}

func (s *S3Store) objectName(provider string) string {
	return path.Join(s.prefix, provider+".json")
}

func (s *S3Store) Load(ctx context.Context, provider string) ([]byte, error) {
	obj, err := s.cli.GetObject(ctx, s.bucket, s.objectName(provider), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapMinioErr(err)
	}
	return data, nil
}

func (s *S3Store) Save(ctx context.Context, provider string, data []byte) error {
	_, err := s.cli.PutObject(ctx, s.bucket, s.objectName(provider),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return mapMinioErr(err)
	}
	return nil
}

func mapMinioErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrBlobNotFound
	}
	return err
}

// splitEndpoint accepts either a bare host:port (TLS assumed) or a full
// http(s) URL and returns what minio.New wants.
func splitEndpoint(raw string) (host string, useTLS bool, err error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return raw, true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("oauth: blob endpoint: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false, fmt.Errorf("oauth: blob endpoint %q is not a host or http(s) URL", raw)
	}
	return u.Host, u.Scheme == "https", nil
}

func loadSecret(file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("oauth: read secret: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
