package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/zyta-booking-widget/internal/attachments"
	appconfig "github.com/wolfman30/zyta-booking-widget/internal/config"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

// LoadAWSConfig centralizes AWS SDK initialization so local runs against
// LocalStack and production share the same wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return config.LoadDefaultConfig(ctx, loaders...)
}

// NewS3Client builds an S3 client. An endpoint override switches to
// path-style addressing, which LocalStack and MinIO require.
func NewS3Client(awsCfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// BuildAttachmentStore returns the S3-backed upload store when a bucket is
// configured and an in-memory store otherwise.
func BuildAttachmentStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (attachments.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	policy := attachments.Policy{MaxBytes: cfg.MaxUploadBytes, Retention: cfg.UploadRetention}

	bucket := strings.TrimSpace(cfg.AttachmentsBucket)
	if bucket == "" {
		logger.Info("attachments bucket not configured; keeping uploads in memory")
		return attachments.NewMemoryStore(policy), nil
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	logger.Info("attachments stored in s3", "bucket", bucket, "endpoint_override", cfg.AWSEndpointOverride != "")
	store := attachments.NewS3Store(NewS3Client(awsCfg, cfg.AWSEndpointOverride), bucket, policy, logger)
	if policy.Retention > 0 {
		expiryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := store.EnsureExpiry(expiryCtx); err != nil {
			// The rule may be managed outside the service; uploads still
			// work, they just are not expired here.
			logger.Warn("attachment expiry rule not installed", "bucket", bucket, "error", err)
		}
	}
	return store, nil
}
