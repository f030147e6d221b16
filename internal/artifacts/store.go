// Package artifacts persists and loads the trained model bundle.
package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/riskloom-cli/internal/utils"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned by Store.Get for an absent object.
var ErrObjectNotFound = errors.New("artifact object not found")

// Store is a flat namespace of named blobs.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	// Location describes where objects live, for messages.
	Location() string
}

// FSStore keeps artifacts as files in Dir.
type FSStore struct {
	Dir string
}

// NewFSStore returns a store rooted at dir.
func NewFSStore(dir string) *FSStore { return &FSStore{Dir: dir} }

// Put writes the object atomically, creating Dir if needed.
func (s *FSStore) Put(_ context.Context, name string, data []byte) error {
	if err := utils.EnsureDir(s.Dir); err != nil {
		return fmt.Errorf("ensure models dir: %w", err)
	}
	return utils.SafeWriteFile(filepath.Join(s.Dir, name), data)
}

// Get reads the object.
func (s *FSStore) Get(_ context.Context, name string) ([]byte, error) {
	path := filepath.Join(s.Dir, name)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

// Location returns the directory.
func (s *FSStore) Location() string { return s.Dir }

// MinioConfig configures a MinioStore.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	// Prefix is prepended to object names, e.g. "runs/latest/".
	Prefix string
}

// MinioStore keeps artifacts as objects in a MinIO or S3 bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore connects to the endpoint and creates the bucket when missing.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	s := &MinioStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return s, nil
}

// Put uploads the object as JSON.
func (s *MinioStore) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.prefix+name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload %s to bucket %s: %w", name, s.bucket, err)
	}
	return nil
}

// Get downloads the object.
func (s *MinioStore) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.prefix+name, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.getError(name, err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.getError(name, err)
	}
	return b, nil
}

func (s *MinioStore) getError(name string, err error) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("%w: %s/%s%s", ErrObjectNotFound, s.bucket, s.prefix, name)
	}
	return fmt.Errorf("get %s from bucket %s: %w", name, s.bucket, err)
}

// Location returns bucket and prefix.
func (s *MinioStore) Location() string {
	return "minio://" + s.bucket + "/" + s.prefix
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}
