package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/picklr-io/zipbuilder/internal/logging"
	"github.com/picklr-io/zipbuilder/internal/retry"
)

// S3Options configures the S3 client.
type S3Options struct {
	Region string
	// Endpoint overrides the S3 endpoint, e.g. for MinIO or LocalStack.
	// Path-style addressing is used when it is set.
	Endpoint string
	// Credentials overrides the default credential chain.
	Credentials aws.CredentialsProvider
}

// S3Store implements Store on top of AWS S3.
type S3Store struct {
	client *s3.Client
	policy *retry.Policy
	logger *slog.Logger
}

// NewS3Store loads the default AWS configuration and returns an S3-backed Store.
func NewS3Store(ctx context.Context, opts S3Options, policy *retry.Policy) (*S3Store, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if opts.Credentials != nil {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(opts.Credentials))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client: client,
		policy: policy,
		logger: logging.Logger(),
	}, nil
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	var out *s3.GetObjectOutput
	err := retry.Do(ctx, s.policy, func() error {
		var err error
		out, err = s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	}, retry.IsTransient)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, body io.ReadSeeker) error {
	err := retry.Do(ctx, s.policy, func() error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind body: %w", err)
		}
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        body,
			ContentType: aws.String("application/zip"),
		})
		return err
	}, retry.IsTransient)
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	err := retry.Do(ctx, s.policy, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	}, retry.IsTransient)
	if err != nil {
		// S3 itself answers 204 for missing keys, some compatible stores do not.
		if isNotFound(err) {
			s.logger.Debug("object already absent", "bucket", bucket, "key", key)
			return nil
		}
		return fmt.Errorf("failed to delete s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
