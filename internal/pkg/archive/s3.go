package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/config"
)

// Uploader stores one object.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// S3Uploader writes objects to an S3 compatible bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
}

// NewS3Uploader builds the client and checks that the bucket is reachable.
// Outside production a missing bucket is created.
func NewS3Uploader(ctx context.Context, cfg config.ArchiveConfig, appEnv string) (*S3Uploader, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("S3 archive is disabled")
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3 compatible services (B2, MinIO) want path-style URLs
			o.UsePathStyle = true
		}
	})

	u := &S3Uploader{client: client, bucket: cfg.BucketName}
	if err := u.ensureBucket(ctx, cfg, appEnv); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Archive] S3 archive ready for bucket: %s", cfg.BucketName)
	return u, nil
}

func (u *S3Uploader) ensureBucket(ctx context.Context, cfg config.ArchiveConfig, appEnv string) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.bucket)})
	if err == nil {
		return nil
	}
	if appEnv == "prod" {
		return fmt.Errorf("bucket %s not accessible: %w", u.bucket, err)
	}

	log.Warnf("[Archive] Bucket %s not found, attempting to create it", u.bucket)
	input := &s3.CreateBucketInput{Bucket: aws.String(u.bucket)}
	if cfg.EndpointURL == "" && cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(cfg.Region),
		}
	}
	if _, err := u.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", u.bucket, err)
	}
	return nil
}

// Upload puts body under key.
func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"upload-source": "channelpass-ledger",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", u.bucket, key, err)
	}
	return nil
}
