// Package s3 resolves an `s3://bucket/key` trace path into a local file
// before the trace reader opens it, grounded on the teacher's
// internal/storage/s3 client/backend pair: the same aws-sdk-go-v2 client
// construction and error translation, narrowed to the one operation this simulator needs — GET,
// not the teacher's full read/write/list surface.
package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssdkconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cachesim/cachesim/internal/circuit"
	"github.com/cachesim/cachesim/internal/logging"
	simerr "github.com/cachesim/cachesim/pkg/errors"
	"github.com/cachesim/cachesim/pkg/retry"
)

// Config configures the S3 trace source, mirroring the subset of the
// teacher's s3.Config this simulator actually exercises.
type Config struct {
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	MaxRetries     int    `yaml:"max_retries"`

	// CacheDir holds downloaded trace files, keyed by bucket/key, so a
	// repeated run against the same trace does not re-fetch it.
	CacheDir string `yaml:"cache_dir"`
}

// DefaultConfig returns sane defaults: 3 retries, caching under the OS
// temp directory.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		CacheDir:   filepath.Join(os.TempDir(), "cachesim-trace-cache"),
	}
}

// Source fetches trace objects from S3, guarding the backend with a
// circuit breaker and retrying transient failures, as the teacher's
// ClientManager does for its own S3 calls.
type Source struct {
	client   *s3.Client
	breaker  *circuit.CircuitBreaker
	retryer  *retry.Retryer
	cacheDir string
	logger   *logging.Logger
}

// New builds a Source. Unlike the teacher's client.go, this does not
// construct a cargoship transporter: the teacher only ever calls into it
// from its accelerated-upload path (Backend.PutObject's Archive/Upload
// call), and this source has no upload path at all — it only ever fetches
// a trace file down to local disk via plain GetObject. A field that would
// exist solely to be constructed and never called is worse than not
// having it.
func New(ctx context.Context, cfg Config, logger *logging.Logger) (*Source, error) {
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultConfig().CacheDir
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to create trace cache directory").
			WithComponent("tracesource/s3").WithCause(err).WithDetail("dir", cfg.CacheDir)
	}

	awsCfg, err := awssdkconfig.LoadDefaultConfig(ctx,
		awssdkconfig.WithRegion(cfg.Region),
		awssdkconfig.WithRetryMaxAttempts(maxInt(cfg.MaxRetries, 1)),
	)
	if err != nil {
		return nil, simerr.NewError(simerr.ErrCodeConfigInvalid, "failed to load AWS config").
			WithComponent("tracesource/s3").WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	breaker := circuit.NewCircuitBreaker("tracesource-s3", circuit.Config{})
	retryer := retry.New(retry.DefaultConfig())

	return &Source{
		client:   client,
		breaker:  breaker,
		retryer:  retryer,
		cacheDir: cfg.CacheDir,
		logger:   logger,
	}, nil
}

// ParseURI splits an "s3://bucket/key" trace path into its bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	const prefix = "s3://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", simerr.NewError(simerr.ErrCodeConfigInvalid, "not an s3:// trace path").
			WithComponent("tracesource/s3").WithDetail("path", uri)
	}
	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", simerr.NewError(simerr.ErrCodeConfigInvalid, "malformed s3:// trace path, want s3://bucket/key").
			WithComponent("tracesource/s3").WithDetail("path", uri)
	}
	return parts[0], parts[1], nil
}

// IsRemote reports whether path names a trace source resolved by Fetch,
// rather than a path the trace reader can open directly.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// Fetch downloads the trace object named by uri ("s3://bucket/key") into
// the cache directory and returns the local path, reusing a previously
// downloaded copy when present. Downloads run behind the circuit breaker
// and retry policy so a flaky backend fails fast rather than hanging the
// simulation run.
func (s *Source) Fetch(ctx context.Context, uri string) (string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}

	localPath := filepath.Join(s.cacheDir, bucket, key)
	if st, statErr := os.Stat(localPath); statErr == nil && st.Size() > 0 {
		if s.logger != nil {
			s.logger.Info("trace cache hit for %s", uri)
		}
		return localPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to create trace cache subdirectory").
			WithComponent("tracesource/s3").WithCause(err)
	}

	tmpPath := localPath + ".download"
	err = s.breaker.Execute(func() error {
		return s.retryer.DoWithContext(ctx, func(ctx context.Context) error {
			return s.downloadOnce(ctx, bucket, key, tmpPath)
		})
	})
	if err != nil {
		os.Remove(tmpPath)
		return "", s.translateError(err, bucket, key)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		return "", simerr.NewError(simerr.ErrCodeInternalError, "failed to finalize downloaded trace file").
			WithComponent("tracesource/s3").WithCause(err)
	}

	if s.logger != nil {
		s.logger.Info("fetched trace %s to %s", uri, localPath)
	}
	return localPath, nil
}

func (s *Source) downloadOnce(ctx context.Context, bucket, key, tmpPath string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return simerr.NewError(simerr.ErrCodeIoOpenFailed, "S3 GetObject failed").
			WithComponent("tracesource/s3").WithCause(err).WithDetail("bucket", bucket).WithDetail("key", key)
	}
	defer out.Body.Close()

	f, err := os.Create(tmpPath)
	if err != nil {
		return simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to create local trace cache file").
			WithComponent("tracesource/s3").WithCause(err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return simerr.NewError(simerr.ErrCodeInternalError, "failed to write downloaded trace data").
			WithComponent("tracesource/s3").WithCause(err)
	}
	return nil
}

func (s *Source) translateError(err error, bucket, key string) error {
	if err == circuit.ErrOpenState {
		return simerr.NewError(simerr.ErrCodeIoOpenFailed, "S3 trace source circuit breaker open, backend unhealthy").
			WithComponent("tracesource/s3").WithCause(err).WithDetail("bucket", bucket).WithDetail("key", key)
	}
	return err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
