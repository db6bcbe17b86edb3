package s3backup

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/gateway"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/github"
)

type fakeS3 struct {
	puts      []*s3.PutObjectInput
	bodies    []string
	headErr   error
	createdOK bool
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createdOK = true
	return &s3.CreateBucketOutput{}, nil
}

func TestRevisionKey(t *testing.T) {
	cfg := &Config{}
	at := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "revisions/octo/site/2025/03/abc123/data/a.json", cfg.RevisionKey("Octo", "Site", "data/a.json", "abc123", at))
	assert.Equal(t, "revisions/octo/site/2025/03/abc123/etc/b.yaml", cfg.RevisionKey("octo", "site", "../etc/b.yaml", "abc123", at))
}

func TestArchiveUploadsContent(t *testing.T) {
	api := &fakeS3{}
	client := NewClientWithAPI(api, &Config{BucketName: "revisions", Enabled: true})
	client.Now = func() time.Time { return time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC) }

	req := gateway.CommitRequest{Owner: "octo", Repo: "site", Path: "a.yaml", Content: "a: 1\n"}
	result := &gateway.CommitResult{Commit: github.CommitInfo{SHA: "abc123"}}
	require.NoError(t, client.Archive(context.Background(), 7, req, result))

	require.Len(t, api.puts, 1)
	put := api.puts[0]
	assert.Equal(t, "revisions", aws.ToString(put.Bucket))
	assert.Equal(t, "revisions/octo/site/2025/03/abc123/a.yaml", aws.ToString(put.Key))
	assert.Equal(t, "application/yaml", aws.ToString(put.ContentType))
	assert.Equal(t, "7", put.Metadata["user-id"])
	assert.Equal(t, "a: 1\n", api.bodies[0])
}

func TestArchiveNeedsCommitSHA(t *testing.T) {
	client := NewClientWithAPI(&fakeS3{}, &Config{BucketName: "revisions"})

	err := client.Archive(context.Background(), 1, gateway.CommitRequest{Path: "a.json"}, &gateway.CommitResult{})
	assert.Error(t, err)
}

func TestConnectionCreatesMissingBucketOutsideProd(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	api := &fakeS3{headErr: errors.New("not found")}
	client := NewClientWithAPI(api, &Config{BucketName: "revisions", Region: "us-east-1"})

	require.NoError(t, client.testConnection(context.Background()))
	assert.True(t, api.createdOK)
}
