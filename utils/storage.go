// mopchan/utils/storage.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// LocalStorage stores uploads on local disk. Saved files are served from
// the /uploads static route.
type LocalStorage struct {
	UploadDir string
}

func (ls *LocalStorage) SaveFile(filename string, data []byte, contentType string) (string, error) {
	if err := os.WriteFile(filepath.Join(ls.UploadDir, filename), data, 0644); err != nil {
		return "", err
	}
	return "/uploads/" + filename, nil
}

// DeleteFile accepts the public path returned by SaveFile. A missing file
// is not an error, deletes are retried best-effort by callers.
func (ls *LocalStorage) DeleteFile(publicPath string) error {
	err := os.Remove(filepath.Join(ls.UploadDir, filepath.Base(publicPath)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// S3Config carries the settings for an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	PublicURL string
	UseSSL    bool
}

// S3Storage stores uploads in an S3-compatible bucket via minio.
type S3Storage struct {
	client *minio.Client
	bucket string
	base   string
}

// NewS3Storage connects to the bucket and verifies it exists. Static
// credentials are required.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("object storage needs an access key and secret key")
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s.%s", scheme, cfg.Bucket, endpoint)
	}

	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
		base:   strings.TrimSuffix(base, "/"),
	}, nil
}

func (s *S3Storage) SaveFile(filename string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(context.Background(), s.bucket, filename,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return s.base + "/" + filename, nil
}

// DeleteFile accepts the public URL returned by SaveFile. The object key is
// its last path segment.
func (s *S3Storage) DeleteFile(publicPath string) error {
	key := path.Base(publicPath)
	if key == "." || key == "/" {
		return nil
	}
	return s.client.RemoveObject(context.Background(), s.bucket, key, minio.RemoveObjectOptions{})
}
