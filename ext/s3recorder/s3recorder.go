// Package s3recorder persists stream offsets as a small S3 object. S3 puts
// are durable on return, but each write is a network round-trip, so this
// suits consumers that ack in coarse batches rather than per event.
package s3recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const opTimeout = 10 * time.Second

// Recorder stores the offset in s3://bucket/key.
type Recorder struct {
	client *s3.Client
	bucket string
	key    string
}

// New loads the default AWS config for region and targets bucket/key.
func New(ctx context.Context, region, bucket, key string) (*Recorder, error) {
	if bucket == "" || key == "" {
		return nil, errors.New("bucket and key are required")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Recorder{client: s3.NewFromConfig(cfg), bucket: bucket, key: key}, nil
}

// NewWithClient wraps an existing S3 client.
func NewWithClient(client *s3.Client, bucket, key string) (*Recorder, error) {
	if bucket == "" || key == "" {
		return nil, errors.New("bucket and key are required")
	}
	return &Recorder{client: client, bucket: bucket, key: key}, nil
}

func (r *Recorder) ReadOffset() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NotFound":
				return "", nil
			}
		}
		return "", fmt.Errorf("read offset object: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read offset object body: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (r *Recorder) WriteOffset(offset string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
		Body:   bytes.NewReader([]byte(offset)),
	})
	if err != nil {
		return fmt.Errorf("write offset object: %w", err)
	}
	return nil
}
