package artifact

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Downloader streams a remote artifact into w.
type Downloader interface {
	DownloadArtifact(ctx context.Context, url string, w io.Writer) (int64, error)
}

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Stored describes a fetched artifact.
type Stored struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Location string `json:"location,omitempty"`
}

// Store downloads build artifacts to disk and optionally mirrors them to S3.
type Store struct {
	dir        string
	downloader Downloader
	s3         S3API
	bucket     string
	prefix     string
}

// Option configures a Store.
type Option func(*Store)

// WithS3 uploads every fetched artifact to bucket under prefix.
func WithS3(client S3API, bucket, prefix string) Option {
	return func(s *Store) {
		s.s3 = client
		s.bucket = bucket
		s.prefix = strings.Trim(prefix, "/")
	}
}

// NewStore creates a Store writing into dir.
func NewStore(dir string, downloader Downloader, opts ...Option) *Store {
	s := &Store{dir: dir, downloader: downloader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch downloads rawURL into the store directory under key/<basename>.
// When S3 is configured the file is uploaded and Location is set to s3://bucket/key.
func (s *Store) Fetch(ctx context.Context, rawURL, key string) (*Stored, error) {
	name, err := FileName(rawURL)
	if err != nil {
		return nil, err
	}
	if key != "" && !filepath.IsLocal(key) {
		return nil, fmt.Errorf("invalid artifact key %q", key)
	}

	dir := filepath.Join(s.dir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create artifact file: %w", err)
	}
	n, err := s.downloader.DownloadArtifact(ctx, rawURL, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}

	stored := &Stored{Path: dst, Size: n}
	zap.L().Info("artifact downloaded", zap.String("path", dst), zap.Int64("bytes", n))

	if s.s3 == nil || s.bucket == "" {
		return stored, nil
	}

	objectKey := path.Join(s.prefix, filepath.ToSlash(key), name)
	if err := s.upload(ctx, dst, objectKey); err != nil {
		return nil, err
	}
	stored.Location = fmt.Sprintf("s3://%s/%s", s.bucket, objectKey)
	zap.L().Info("artifact uploaded", zap.String("location", stored.Location))
	return stored, nil
}

func (s *Store) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload artifact to s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// FileName returns the last path segment of rawURL.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid artifact url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("artifact url %q has no file name", rawURL)
	}
	return name, nil
}

// S3Config selects the bucket region and an optional S3-compatible endpoint.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client builds an S3 client. Static credentials are used when both keys
// are set; otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
