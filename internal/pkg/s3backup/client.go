package s3backup

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/gateway"
)

// ObjectAPI is the part of the S3 client the archiver needs.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Client archives committed file revisions to S3.
type Client struct {
	s3Client ObjectAPI
	config   *Config
	Now      func() time.Time
}

// NewClient creates a new S3 backup client
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("S3 backup is disabled")
	}

	// Create AWS config
	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services (Backblaze B2, MinIO) need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	client := NewClientWithAPI(s3Client, cfg)
	if err := client.testConnection(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[S3Backup] Successfully initialized S3 client for bucket: %s", cfg.GetBucketName())
	return client, nil
}

// NewClientWithAPI wraps an existing S3 API implementation.
func NewClientWithAPI(api ObjectAPI, cfg *Config) *Client {
	return &Client{s3Client: api, config: cfg, Now: time.Now}
}

// testConnection tests the S3 connection by checking if the bucket exists
func (c *Client) testConnection(ctx context.Context) error {
	bucketName := c.config.GetBucketName()

	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		if GetAppEnv() != "prod" {
			log.Warnf("[S3Backup] Bucket %s not found, attempting to create it", bucketName)
			return c.createBucket(ctx, bucketName)
		}
		return fmt.Errorf("bucket %s not accessible: %w", bucketName, err)
	}
	return nil
}

// createBucket creates a new S3 bucket (dev/staging only)
func (c *Client) createBucket(ctx context.Context, bucketName string) error {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	}

	// AWS outside us-east-1 needs a location constraint; B2 rejects one
	if c.config.EndpointURL == "" && c.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.config.Region),
		}
	}

	if _, err := c.s3Client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}

	log.Infof("[S3Backup] Successfully created bucket: %s", bucketName)
	return nil
}

// Archive stores the committed content under its revision key.
func (c *Client) Archive(ctx context.Context, userID uint, req gateway.CommitRequest, result *gateway.CommitResult) error {
	bucketName := c.config.GetBucketName()
	commitSHA := ""
	if result != nil {
		commitSHA = result.Commit.SHA
	}
	if commitSHA == "" {
		return fmt.Errorf("missing commit sha for %s/%s/%s", req.Owner, req.Repo, req.Path)
	}
	objectKey := c.config.RevisionKey(req.Owner, req.Repo, req.Path, commitSHA, c.Now().UTC())

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucketName),
		Key:           aws.String(objectKey),
		Body:          strings.NewReader(req.Content),
		ContentType:   aws.String(getContentType(path.Ext(req.Path))),
		ContentLength: aws.Int64(int64(len(req.Content))),
		Metadata: map[string]string{
			"repository":    req.Owner + "/" + req.Repo,
			"file-path":     req.Path,
			"commit-sha":    commitSHA,
			"user-id":       strconv.FormatUint(uint64(userID), 10),
			"upload-source": "gitdataedit-backup",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Infof("[S3Backup] Archived revision: s3://%s/%s", bucketName, objectKey)
	return nil
}

// getContentType returns the MIME type based on file extension
func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}
