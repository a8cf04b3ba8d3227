package destination

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Dispatcher delivers to an S3-compatible bucket. Required: bucket_name,
// region, access_key, secret_key. Optional: service_url (path-style
// addressing for non-AWS providers), prefix (prepended to every key).
// storage_class and timeout_seconds are not read: objects get the bucket's
// default storage class and requests carry no timeout beyond ctx.
type S3Dispatcher struct{}

type s3Config struct {
	bucket      string
	region      string
	accessKey   string
	secretKey   string
	serviceURL  string
	prefix      string
}

func parseS3Config(config map[string]interface{}) s3Config {
	c := s3Config{}
	if v, ok := config["bucket_name"].(string); ok {
		c.bucket = v
	}
	if v, ok := config["region"].(string); ok {
		c.region = v
	}
	if v, ok := config["access_key"].(string); ok {
		c.accessKey = v
	}
	if v, ok := config["secret_key"].(string); ok {
		c.secretKey = v
	}
	if v, ok := config["service_url"].(string); ok {
		c.serviceURL = v
	}
	if v, ok := config["prefix"].(string); ok {
		c.prefix = v
	}
	return c
}

func (s *S3Dispatcher) client(ctx context.Context, c s3Config) (*s3.Client, error) {
	creds := credentials.NewStaticCredentialsProvider(c.accessKey, c.secretKey, "")
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(c.region), config.WithCredentialsProvider(creds))
	if err != nil {
		return nil, fmt.Errorf("destination: s3: load config: %w", err)
	}

	if c.serviceURL != "" {
		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(c.serviceURL)
			o.UsePathStyle = true
		}), nil
	}
	return s3.NewFromConfig(awsCfg), nil
}

func (s *S3Dispatcher) key(c s3Config, relativePath string) string {
	if c.prefix == "" {
		return relativePath
	}
	return path.Join(c.prefix, relativePath)
}

func (s *S3Dispatcher) Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error) {
	c := parseS3Config(config)
	client, err := s.client(ctx, c)
	if err != nil {
		return SaveResult{}, err
	}

	key := s.key(c, strings.ReplaceAll(relativePath, "\\", "/"))
	uploader := manager.NewUploader(client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return SaveResult{}, fmt.Errorf("destination: s3: upload: %w", err)
	}

	return SaveResult{Success: true, FinalPath: fmt.Sprintf("s3://%s/%s", c.bucket, key)}, nil
}

// Test performs a bucket-location probe, uploads a small test object, then
// deletes it
func (s *S3Dispatcher) Test(ctx context.Context, config map[string]interface{}) (TestResult, error) {
	c := parseS3Config(config)
	client, err := s.client(ctx, c)
	if err != nil {
		return TestResult{}, err
	}

	if _, err := client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(c.bucket)}); err != nil {
		return TestResult{}, fmt.Errorf("destination: s3: get bucket location: %w", err)
	}

	key := s.key(c, "reef-test/connectivity-check")
	content := []byte("reef connectivity check")
	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	}); err != nil {
		return TestResult{}, fmt.Errorf("destination: s3: test put: %w", err)
	}
	_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(key)})

	return TestResult{Success: true, FinalPath: fmt.Sprintf("s3://%s/%s", c.bucket, key), Bytes: int64(len(content)), Message: "ok"}, nil
}

func (s *S3Dispatcher) Compensate(ctx context.Context, config map[string]interface{}, finalPath string) error {
	c := parseS3Config(config)
	client, err := s.client(ctx, c)
	if err != nil {
		return err
	}
	key := strings.TrimPrefix(finalPath, fmt.Sprintf("s3://%s/", c.bucket))
	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("destination: s3: compensate: %w", err)
	}
	return nil
}
