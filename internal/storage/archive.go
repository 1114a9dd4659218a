package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"bess-analytics/internal/timeseries"
)

const archiveMaxRetries = 3

// Archiver uploads processed batches as CSV objects to S3.
type Archiver struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewArchiver builds an archiver for the given bucket.
func NewArchiver(region, bucket, prefix string) (*Archiver, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("storage: archive bucket is empty")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("storage: aws session: %w", err)
	}
	return &Archiver{
		client: s3.New(sess),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// ArchiveFrame uploads the frame under <prefix>/<batteryID>/<uuid>.csv and
// returns the object key. Transient upload failures are retried with
// exponential backoff.
func (a *Archiver) ArchiveFrame(ctx context.Context, batteryID string, f *timeseries.Frame) (string, error) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		return "", err
	}
	key := path.Join(a.prefix, batteryID, uuid.NewString()+".csv")

	upload := func() error {
		_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String("text/csv"),
		})
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), archiveMaxRetries), ctx)
	if err := backoff.Retry(upload, policy); err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return key, nil
}
