package sync

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options locates the snapshot object. A non-empty Endpoint selects
// path-style addressing for MinIO and similar servers.
type S3Options struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string
}

// S3Destination overwrites one object with each new snapshot. The digest and
// entry count travel as object metadata.
type S3Destination struct {
	client *s3.Client
	opts   S3Options
}

// NewS3Destination loads AWS credentials from the default chain.
func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	if opts.Bucket == "" || opts.Key == "" {
		return nil, fmt.Errorf("s3 destination needs a bucket and key")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Destination{client: client, opts: opts}, nil
}

func (d *S3Destination) Name() string {
	return "s3://" + d.opts.Bucket + "/" + d.opts.Key
}

func (d *S3Destination) Write(ctx context.Context, p Payload) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.opts.Bucket),
		Key:         aws.String(d.opts.Key),
		Body:        bytes.NewReader(p.Data),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"kconf-digest":  p.Digest,
			"kconf-entries": strconv.Itoa(p.Entries),
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", d.Name(), err)
	}
	return nil
}
