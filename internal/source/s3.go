package source

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Fetcher reads objects matching a key prefix/glob from an S3 bucket.
type S3Fetcher struct{}

type s3SourceConfig struct {
	bucket     string
	region     string
	accessKey  string
	secretKey  string
	serviceURL string
	prefix     string
	archivePrefix string
}

func parseS3SourceConfig(config map[string]interface{}) s3SourceConfig {
	c := s3SourceConfig{}
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
	if v, ok := config["archive_prefix"].(string); ok {
		c.archivePrefix = v
	}
	return c
}

func (s *S3Fetcher) client(ctx context.Context, c s3SourceConfig) (*s3.Client, error) {
	creds := credentials.NewStaticCredentialsProvider(c.accessKey, c.secretKey, "")
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(c.region), config.WithCredentialsProvider(creds))
	if err != nil {
		return nil, fmt.Errorf("source: s3: load config: %w", err)
	}
	if c.serviceURL != "" {
		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(c.serviceURL)
			o.UsePathStyle = true
		}), nil
	}
	return s3.NewFromConfig(awsCfg), nil
}

func (s *S3Fetcher) Fetch(ctx context.Context, config map[string]interface{}, pattern string, selection Selection) ([]Item, error) {
	c := parseS3SourceConfig(config)
	client, err := s.client(ctx, c)
	if err != nil {
		return nil, err
	}

	listOut, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(c.bucket), Prefix: aws.String(c.prefix)})
	if err != nil {
		return nil, fmt.Errorf("source: s3: list: %w", err)
	}

	var keys []string
	modTimes := make(map[string]int64)
	for _, obj := range listOut.Contents {
		key := aws.ToString(obj.Key)
		if pattern != "" {
			if ok, _ := path.Match(pattern, path.Base(key)); !ok {
				continue
			}
		}
		keys = append(keys, key)
		if obj.LastModified != nil {
			modTimes[key] = obj.LastModified.UnixNano()
		}
	}
	sort.Strings(keys)

	chosen := selectItems(keys, modTimes, selection)
	items := make([]Item, 0, len(chosen))
	for _, key := range chosen {
		out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(key)})
		if err != nil {
			return nil, fmt.Errorf("source: s3: get %s: %w", key, err)
		}
		content, err := readAllAndClose(out.Body)
		if err != nil {
			return nil, fmt.Errorf("source: s3: read %s: %w", key, err)
		}
		items = append(items, Item{Identifier: fmt.Sprintf("s3://%s/%s", c.bucket, key), ContentBytes: content})
	}
	return items, nil
}

func (s *S3Fetcher) Archive(ctx context.Context, config map[string]interface{}, identifier string) error {
	c := parseS3SourceConfig(config)
	if c.archivePrefix == "" {
		return nil
	}
	client, err := s.client(ctx, c)
	if err != nil {
		return err
	}

	key := identifier
	prefix := fmt.Sprintf("s3://%s/", c.bucket)
	if len(identifier) > len(prefix) && identifier[:len(prefix)] == prefix {
		key = identifier[len(prefix):]
	}
	destKey := path.Join(c.archivePrefix, path.Base(key))
	copySource := fmt.Sprintf("%s/%s", c.bucket, key)

	if _, err := client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		Key:        aws.String(destKey),
		CopySource: aws.String(copySource),
	}); err != nil {
		return fmt.Errorf("source: s3: archive copy: %w", err)
	}
	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("source: s3: archive delete original: %w", err)
	}
	return nil
}
