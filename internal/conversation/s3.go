package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"digitaltwin/internal/logger"
	"digitaltwin/pkg/twintypes"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps one JSON object per session under an optional key prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store creates a store over an existing client.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// NewS3StoreFromConfig builds an S3 client from the default AWS credential chain.
func NewS3StoreFromConfig(ctx context.Context, bucket, region, prefix string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket cannot be empty")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	logger.Debug("S3 conversation store initialized", "bucket", bucket, "region", awsCfg.Region, "prefix", prefix)
	return NewS3Store(s3.NewFromConfig(awsCfg), bucket, prefix), nil
}

// Backend returns "s3".
func (s *S3Store) Backend() string {
	return "s3"
}

func (s *S3Store) key(id string) string {
	return s.prefix + id + ".json"
}

// Load fetches the session object. NoSuchKey is an empty history.
func (s *S3Store) Load(ctx context.Context, id string) ([]twintypes.Record, error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return []twintypes.Record{}, nil
		}
		return nil, fmt.Errorf("failed to get conversation %s from s3: %w", id, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}
	return decodeRecords(data)
}

// Save uploads the full history, replacing the previous object.
func (s *S3Store) Save(ctx context.Context, id string, records []twintypes.Record) error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}

	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put conversation %s to s3: %w", id, err)
	}

	logger.Debug("Conversation saved", "backend", "s3", "session", id, "records", len(records))
	return nil
}
