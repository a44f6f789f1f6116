package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver keeps raw dead-lettered payloads in object storage so the
// original message survives any later queue purge.
type Archiver struct {
	client *s3.Client
	bucket string
}

func NewArchiver(ctx context.Context, accessKey, secretKey, region, endpoint, bucket string) (*Archiver, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	if endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint}, nil
		})
		opts = append(opts, config.WithEndpointResolverWithOptions(resolver))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive storage config: %w", err)
	}

	return &Archiver{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// Store writes the payload and returns the object key.
func (a *Archiver) Store(ctx context.Context, queue, messageID, body string) (string, error) {
	key := fmt.Sprintf("dead-letters/%s/%s/%s.json",
		queue, time.Now().UTC().Format("2006-01-02"), messageID)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive dead letter: %w", err)
	}
	return key, nil
}
