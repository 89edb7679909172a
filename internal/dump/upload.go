package dump

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const uploadTimeout = 60 * time.Second

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint        string // Custom S3 endpoint (empty for AWS)
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// IsConfigured returns true if S3 settings are configured.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// createS3Client creates an S3 client with the given configuration.
func createS3Client(cfg *S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// S3Key returns the object key for an encoded dump: silence-dumps/2024/01/file.mp3.
func S3Key(result *Result) string {
	return fmt.Sprintf("silence-dumps/%s/%s",
		result.CapturedAt.UTC().Format("2006/01"), result.Filename)
}

// Upload stores an encoded dump in the configured bucket.
func Upload(cfg *S3Config, result *Result) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("S3 is not configured")
	}
	if result.Error != nil {
		return fmt.Errorf("refusing to upload failed dump: %w", result.Error)
	}

	data, err := os.ReadFile(result.FilePath)
	if err != nil {
		return fmt.Errorf("read dump file: %w", err)
	}

	client := createS3Client(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	key := S3Key(result)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("audio/mpeg"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("upload dump: %w", err)
	}

	slog.Info("silence dump uploaded", "key", key, "size", len(data))
	return nil
}

// TestS3Connection tests connectivity to an S3 bucket by uploading and deleting a test file.
func TestS3Connection(cfg *S3Config) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("S3 is not configured")
	}

	client := createS3Client(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("ZuidWest FM autogain connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}
