package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// Presigner is the subset of *s3.PresignClient the signer needs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Signer issues presigned GET URLs for objects in one bucket.
type S3Signer struct {
	bucket    string
	presigner Presigner
	logger    *zap.Logger
}

func NewS3Signer(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Signer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	awsOptions := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsOptions = append(awsOptions,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			)),
		)
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return NewS3SignerWithPresigner(cfg.Bucket, s3.NewPresignClient(client), logger), nil
}

func NewS3SignerWithPresigner(bucket string, presigner Presigner, logger *zap.Logger) *S3Signer {
	return &S3Signer{
		bucket:    bucket,
		presigner: presigner,
		logger:    logger,
	}
}

// SignURLs presigns every path. A path that fails to sign is logged and left
// out of the result so the caller can report which asset is affected.
func (s *S3Signer) SignURLs(ctx context.Context, paths []string, ttl time.Duration) (map[string]string, error) {
	urls := make(map[string]string, len(paths))
	for _, path := range paths {
		key := strings.TrimPrefix(path, "/")
		req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			s.logger.Warn("Failed to presign media object",
				zap.String("bucket", s.bucket),
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		urls[path] = req.URL
	}

	if len(paths) > 0 && len(urls) == 0 {
		return nil, fmt.Errorf("no media object could be signed in bucket %s", s.bucket)
	}
	return urls, nil
}
