// Package cloud provides remote backup storage access. Backups that
// have been uploaded to object storage can be listed and pulled back
// down during a restore when the local copy is gone.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"

	"pitrctl/internal/config"
	"pitrctl/internal/fs"
	"pitrctl/internal/logger"
)

// ErrDisabled is returned when remote storage is not configured.
var ErrDisabled = errors.New("remote backup storage is disabled")

// Object describes a stored backup archive.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store lists and retrieves backup archives from remote storage.
type Store interface {
	// List returns all objects under prefix.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Download fetches key into the local file dst.
	Download(ctx context.Context, key, dst string) error
}

// S3Store implements Store against S3-compatible object storage.
type S3Store struct {
	client *s3.Client
	bucket string
	log    logger.Logger
}

// NewS3Store builds a Store from configuration. Returns ErrDisabled
// when S3 backup storage is not enabled.
func NewS3Store(ctx context.Context, cfg config.S3Config, log logger.Logger) (*S3Store, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	endpoint := cfg.Endpoint
	if !strings.Contains(endpoint, "://") {
		scheme := "https"
		if !cfg.UseSSL {
			scheme = "http"
		}
		endpoint = scheme + "://" + endpoint
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Store{client: client, bucket: cfg.Bucket, log: log}, nil
}

// List returns all objects under prefix, paging through the bucket.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object

	err := withRetry(ctx, func() error {
		objects = objects[:0]
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("listing s3://%s/%s: %w", s.bucket, prefix, err)
			}
			for _, obj := range page.Contents {
				objects = append(objects, Object{
					Key:          aws.ToString(obj.Key),
					Size:         aws.ToInt64(obj.Size),
					LastModified: aws.ToTime(obj.LastModified),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("listed remote backups", "prefix", prefix, "count", len(objects))
	return objects, nil
}

// Download fetches key into dst via a temp file so a partial download
// never masquerades as a complete archive.
func (s *S3Store) Download(ctx context.Context, key, dst string) error {
	tmp := dst + ".partial"

	err := withRetry(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("fetching s3://%s/%s: %w", s.bucket, key, err)
		}
		defer out.Body.Close()

		f, err := fs.FS.Create(tmp)
		if err != nil {
			return fmt.Errorf("creating %s: %w", tmp, err)
		}
		n, err := io.Copy(f, out.Body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			fs.FS.Remove(tmp)
			return fmt.Errorf("writing %s: %w", tmp, err)
		}

		s.log.Info("downloaded remote backup",
			"key", key, "size", humanize.Bytes(uint64(n)))
		return nil
	})
	if err != nil {
		return err
	}

	if err := fs.FS.Rename(tmp, dst); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

// EnsureLocal downloads key into dir unless the file already exists.
// Returns the local path.
func EnsureLocal(ctx context.Context, store Store, key, dir string) (string, error) {
	local := filepath.Join(dir, filepath.Base(key))
	if fs.Exists(local) {
		return local, nil
	}
	if err := fs.FS.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := store.Download(ctx, key, local); err != nil {
		return "", err
	}
	return local, nil
}
