package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	PutObjectTagging(ctx context.Context, params *s3.PutObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error)
	PutBucketLifecycleConfiguration(ctx context.Context, params *s3.PutBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.PutBucketLifecycleConfigurationOutput, error)
}

// lifecycleRuleID names the bucket rule that expires pending uploads.
const lifecycleRuleID = "zyta-widget-pending-uploads"

// S3Store keeps uploads in a bucket. Objects are written tagged as pending;
// EnsureExpiry installs the lifecycle rule that deletes pending objects,
// and Keep retags the uploads of a booked appointment.
type S3Store struct {
	bucket string
	client S3API
	policy Policy
	logger *logging.Logger
}

func NewS3Store(client S3API, bucket string, policy Policy, logger *logging.Logger) *S3Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &S3Store{bucket: bucket, client: client, policy: policy, logger: logger}
}

func (s *S3Store) Put(ctx context.Context, owner string, kind Kind, filename string, data []byte) (Ref, error) {
	contentType, err := s.policy.Check(kind, data)
	if err != nil {
		return Ref{}, err
	}
	key := objectKey(owner, kind, filename)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"filename": filename, "kind": string(kind)},
		Tagging:     aws.String(StateTag + "=" + StatePending),
	})
	if err != nil {
		return Ref{}, fmt.Errorf("attachments: s3 put %s: %w", key, err)
	}
	s.logger.Info("attachment stored", "key", key, "kind", kind, "size", len(data))
	return Ref{
		Key:         key,
		Kind:        kind,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		UploadedAt:  time.Now().UTC(),
	}, nil
}

func (s *S3Store) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.Key)
		}
		return nil, fmt.Errorf("attachments: s3 get %s: %w", ref.Key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Release(ctx context.Context, ref Ref) error {
	if ref.Key == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return fmt.Errorf("attachments: s3 delete %s: %w", ref.Key, err)
	}
	s.logger.Debug("attachment released", "key", ref.Key)
	return nil
}

// Keep retags the object as booked so the lifecycle rule skips it.
func (s *S3Store) Keep(ctx context.Context, ref Ref) error {
	booked := &s3types.Tagging{TagSet: []s3types.Tag{{Key: aws.String(StateTag), Value: aws.String(StateBooked)}}}
	_, err := s.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(s.bucket),
		Key:     aws.String(ref.Key),
		Tagging: booked,
	})
	if err != nil {
		return fmt.Errorf("attachments: s3 tag %s: %w", ref.Key, err)
	}
	return nil
}

// EnsureExpiry installs the bucket lifecycle rule that deletes pending
// uploads once the policy's retention has passed. S3 expires objects in
// whole days, so retention is rounded up to at least one day.
func (s *S3Store) EnsureExpiry(ctx context.Context) error {
	if s.policy.Retention <= 0 {
		return nil
	}
	days := int32((s.policy.Retention + 24*time.Hour - 1) / (24 * time.Hour))
	pending := &s3types.LifecycleRuleAndOperator{
		Prefix: aws.String(keyPrefix + "/"),
		Tags:   []s3types.Tag{{Key: aws.String(StateTag), Value: aws.String(StatePending)}},
	}
	rule := s3types.LifecycleRule{
		ID:         aws.String(lifecycleRuleID),
		Status:     s3types.ExpirationStatusEnabled,
		Filter:     &s3types.LifecycleRuleFilter{And: pending},
		Expiration: &s3types.LifecycleExpiration{Days: aws.Int32(days)},
	}
	_, err := s.client.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket:                 aws.String(s.bucket),
		LifecycleConfiguration: &s3types.BucketLifecycleConfiguration{Rules: []s3types.LifecycleRule{rule}},
	})
	if err != nil {
		return fmt.Errorf("attachments: s3 lifecycle %s: %w", s.bucket, err)
	}
	s.logger.Info("attachment expiry rule installed", "bucket", s.bucket, "days", days)
	return nil
}
