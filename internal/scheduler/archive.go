package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"stagecall/internal/types"
)

// S3PutClient is the slice of the S3 API the archiver uses.
type S3PutClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// JobArchiver persists purged jobs before they leave the database.
type JobArchiver interface {
	ArchiveJobs(ctx context.Context, orgID string, jobs []types.MessageJob, at time.Time) (string, error)
}

// S3JobArchiver writes purged jobs to S3 as zstd-compressed JSONL, one job
// per line, keyed by organization and purge date.
type S3JobArchiver struct {
	client S3PutClient
	bucket string
}

// NewS3JobArchiver creates an archiver writing to the given bucket.
func NewS3JobArchiver(client S3PutClient, bucket string) *S3JobArchiver {
	return &S3JobArchiver{client: client, bucket: bucket}
}

// ArchiveJobs uploads the batch and returns the object key.
func (a *S3JobArchiver) ArchiveJobs(ctx context.Context, orgID string, jobs []types.MessageJob, at time.Time) (string, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create archive encoder", err)
	}

	lines := json.NewEncoder(enc)
	for i := range jobs {
		if err := lines.Encode(&jobs[i]); err != nil {
			enc.Close()
			return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize job for archive", err)
		}
	}
	if err := enc.Close(); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to finalize archive", err)
	}

	key := fmt.Sprintf("jobs/%s/%s/batch_%d.jsonl.zst", orgID, at.UTC().Format("2006/01"), at.UnixNano())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/zstd"),
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamStorage, "failed to upload job archive", err)
	}
	return key, nil
}
