package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/edushare/edushare-backend/internal/pkg/logger"
)

const s3URLTTL = time.Hour

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type s3Driver struct {
	log      *logger.Logger
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

func NewS3Driver(log *logger.Logger, cfg S3Config) (Driver, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
		awsCfg.DisableSSL = aws.Bool(!cfg.UseSSL)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	client := s3.New(sess)
	return &s3Driver{
		log:      log.With("driver", "S3Driver"),
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   cfg.Bucket,
	}, nil
}

func (d *s3Driver) Store(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	// s3manager does multipart streaming uploads, so large files never sit
	// fully in memory.
	_, err := d.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return failure("store", key, err)
	}
	return nil
}

func (d *s3Driver) DownloadURL(ctx context.Context, key, displayName string) (string, time.Time, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}
	if displayName != "" {
		input.ResponseContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", displayName))
	}

	// HeadObject first so a missing key surfaces as ErrNotFound instead of a
	// presigned URL that 404s in the client's browser.
	if _, err := d.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}); err != nil {
		if isNotFound(err) {
			return "", time.Time{}, ErrNotFound
		}
		return "", time.Time{}, failure("head", key, err)
	}

	req, _ := d.client.GetObjectRequest(input)
	req.SetContext(ctx)
	url, err := req.Presign(s3URLTTL)
	if err != nil {
		return "", time.Time{}, failure("presign", key, err)
	}
	return url, time.Now().Add(s3URLTTL), nil
}

func (d *s3Driver) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			d.log.Warn("Delete of absent object, treating as already gone", "storage_key", key)
			return nil
		}
		return failure("delete", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var ae awserr.Error
	if errors.As(err, &ae) {
		switch ae.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
