package scheduler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagecall/internal/types"
)

type captureS3 struct {
	input *s3.PutObjectInput
	err   error
}

func (c *captureS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.input = params
	if c.err != nil {
		return nil, c.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveJobs_WritesCompressedJSONL(t *testing.T) {
	s3c := &captureS3{}
	a := NewS3JobArchiver(s3c, "stagecall-archive")

	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	jobs := []types.MessageJob{
		{ID: 1, JobKey: "org_1:INIT:event:7", Status: types.JobStatusSent},
		{ID: 2, JobKey: "org_1:TECH_REMINDER:event:7", Status: types.JobStatusSkipped},
	}

	key, err := a.ArchiveJobs(context.Background(), testOrg, jobs, at)
	require.NoError(t, err)
	assert.Contains(t, key, "jobs/org_1/2026/06/")
	assert.Contains(t, key, ".jsonl.zst")

	require.NotNil(t, s3c.input)
	assert.Equal(t, "stagecall-archive", *s3c.input.Bucket)
	assert.Equal(t, key, *s3c.input.Key)

	dec, err := zstd.NewReader(s3c.input.Body)
	require.NoError(t, err)
	defer dec.Close()

	var lines []types.MessageJob
	scanner := bufio.NewScanner(io.Reader(dec))
	for scanner.Scan() {
		var j types.MessageJob
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &j))
		lines = append(lines, j)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)
	assert.Equal(t, "org_1:INIT:event:7", lines[0].JobKey)
	assert.Equal(t, types.JobStatusSkipped, lines[1].Status)
}

func TestArchiveJobs_UploadFailure(t *testing.T) {
	s3c := &captureS3{err: errors.New("access denied")}
	a := NewS3JobArchiver(s3c, "stagecall-archive")

	_, err := a.ArchiveJobs(context.Background(), testOrg, []types.MessageJob{{ID: 1}}, time.Now())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamStorage, appErr.Code)
}
