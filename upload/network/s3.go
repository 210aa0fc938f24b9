package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/upos-tools/go-uploader/v2/upload/network/chunkuploader"
)

const (
	minS3PartSize = 5 * 1024 * 1024
	maxS3Parts    = 10000
)

// S3Params ...
type S3Params struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint selects an S3 compatible service instead of AWS, addressed path style.
	Endpoint string
	// KeyPrefix is prepended to the file name to build the object key.
	KeyPrefix string
	// ChunkSize is the part size. 0 picks one from the file size and Concurrency.
	ChunkSize   int64
	Concurrency int
}

type s3API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Backend uploads files as S3 multipart uploads, one part per chunk.
type S3Backend struct {
	client      s3API
	bucket      string
	keyPrefix   string
	chunkSize   int64
	concurrency int
	acquirer    SessionAcquirer
	logger      log.Logger

	mu sync.Mutex
	// etags of the sent parts by upload ID and part number
	etags map[string]map[int32]string
}

var _ Backend = (*S3Backend)(nil)

// NewS3Backend ...
func NewS3Backend(ctx context.Context, params S3Params, sessionConfig SessionConfig, logger log.Logger) (*S3Backend, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	cfg, err := loadAWSCredentials(
		ctx,
		params.Region,
		params.AccessKeyID,
		params.SecretAccessKey,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Backend(client, params, sessionConfig, logger), nil
}

func newS3Backend(client s3API, params S3Params, sessionConfig SessionConfig, logger log.Logger) *S3Backend {
	b := &S3Backend{
		client:      client,
		bucket:      params.Bucket,
		keyPrefix:   params.KeyPrefix,
		chunkSize:   params.ChunkSize,
		concurrency: params.Concurrency,
		logger:      logger,
		etags:       map[string]map[int32]string{},
	}
	b.acquirer = NewSessionAcquirer(b, sessionConfig, logger)
	return b
}

// Name ...
func (b *S3Backend) Name() string {
	return "s3"
}

// AcquireSession ...
func (b *S3Backend) AcquireSession(ctx context.Context, path string, size int64) (*chunkuploader.Session, error) {
	return b.acquirer.AcquireSession(ctx, path, size)
}

// Negotiate creates a multipart upload for the file.
func (b *S3Backend) Negotiate(ctx context.Context, filePath string, size int64) (*chunkuploader.Session, error) {
	key := path.Join(b.keyPrefix, filepath.Base(filePath))

	out, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return nil, fmt.Errorf("create multipart upload: %w", err)
	}
	if out.UploadId == nil {
		return nil, fmt.Errorf("create multipart upload: no upload ID in response")
	}

	uploadID := aws.ToString(out.UploadId)
	b.mu.Lock()
	b.etags[uploadID] = map[int32]string{}
	b.mu.Unlock()

	return &chunkuploader.Session{
		Path:        filePath,
		Filename:    key,
		EndpointURL: fmt.Sprintf("s3://%s/%s", b.bucket, key),
		ChunkSize:   b.partSize(size),
		TotalSize:   size,
		UploadID:    uploadID,
	}, nil
}

func (b *S3Backend) partSize(size int64) int64 {
	partSize := b.chunkSize
	if partSize <= 0 {
		partSize = chunkuploader.OptimalChunkSizeBytes(size, b.concurrency)
	}
	if partSize < minS3PartSize {
		partSize = minS3PartSize
	}
	if lower := (size + maxS3Parts - 1) / maxS3Parts; partSize < lower {
		partSize = lower
	}
	return partSize
}

// Sender ...
func (b *S3Backend) Sender() chunkuploader.Sender {
	return chunkuploader.SenderFunc(b.uploadPart)
}

func (b *S3Backend) uploadPart(ctx context.Context, chunk chunkuploader.Chunk, body io.ReadSeeker) error {
	session := chunk.Session
	if session == nil {
		return fmt.Errorf("chunk %d of %s has no session", chunk.PartNumber(), chunk.Path)
	}
	partNumber := int32(chunk.PartNumber())

	out, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(session.Filename),
		UploadId:      aws.String(session.UploadID),
		PartNumber:    aws.Int32(partNumber),
		ContentLength: aws.Int64(chunk.Size()),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("upload part %d: %w", partNumber, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	parts, ok := b.etags[session.UploadID]
	if !ok {
		return fmt.Errorf("unknown upload ID: %s", session.UploadID)
	}
	parts[partNumber] = aws.ToString(out.ETag)
	return nil
}

// Finalize completes the multipart upload. Uploads with missing parts or a rejected completion are aborted.
func (b *S3Backend) Finalize(ctx context.Context, session *chunkuploader.Session) (FinalizeResult, error) {
	b.mu.Lock()
	etags := b.etags[session.UploadID]
	delete(b.etags, session.UploadID)
	b.mu.Unlock()

	if missing := session.NumChunks() - len(etags); missing > 0 {
		b.logger.Warnf("%d of %d parts of %s are missing, aborting multipart upload", missing, session.NumChunks(), session.Filename)
		if err := b.Abort(ctx, session); err != nil {
			return FinalizeResult{}, err
		}
		return FinalizeResult{Details: map[string]any{
			"key":           session.Filename,
			"missing_parts": missing,
		}}, nil
	}

	parts := make([]types.CompletedPart, 0, len(etags))
	for number, etag := range etags {
		parts = append(parts, types.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int32(number),
		})
	}
	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	out, err := b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.bucket),
		Key:             aws.String(session.Filename),
		UploadId:        aws.String(session.UploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		var apiError smithy.APIError
		if !errors.As(err, &apiError) {
			return FinalizeResult{}, fmt.Errorf("complete multipart upload: %w", err)
		}

		b.logger.Warnf("Completing %s was rejected (%s), aborting multipart upload", session.Filename, apiError.ErrorCode())
		if err := b.Abort(ctx, session); err != nil {
			return FinalizeResult{}, err
		}
		return FinalizeResult{Details: map[string]any{
			"key":     session.Filename,
			"code":    apiError.ErrorCode(),
			"message": apiError.ErrorMessage(),
		}}, nil
	}

	return FinalizeResult{OK: true, Details: map[string]any{
		"key":      session.Filename,
		"location": aws.ToString(out.Location),
		"etag":     aws.ToString(out.ETag),
		"parts":    len(parts),
	}}, nil
}

// Abort discards the multipart upload of session together with its already sent parts.
func (b *S3Backend) Abort(ctx context.Context, session *chunkuploader.Session) error {
	b.mu.Lock()
	delete(b.etags, session.UploadID)
	b.mu.Unlock()

	_, err := b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(session.Filename),
		UploadId: aws.String(session.UploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
