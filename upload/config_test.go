package upload

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_loadSettings(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, s settings)
		wantErr string
	}{
		{
			name:    "Defaults",
			envVars: map[string]string{cookiesEnvKey: "SESSDATA=abc; bili_jct=csrf"},
			check: func(t *testing.T, s settings) {
				assert.Equal(t, backendUpos, s.Backend)
				assert.Equal(t, 3, s.Chunk.Concurrency)
				assert.Equal(t, 5, s.Chunk.MaxRetryPerChunk)
				assert.Equal(t, 5, s.Session.Attempts)
				assert.Equal(t, 5, s.Submit.MaxAttempts)
				assert.False(t, s.API.ForceHTTP)
				assert.Equal(t, []string{"UPLOAD_COOKIES", "UPLOAD_S3_SECRET_ACCESS_KEY"}, s.SecretKeys)
			},
		},
		{
			name: "Overrides",
			envVars: map[string]string{
				cookiesEnvKey:        "SESSDATA=abc",
				workersEnvKey:        "8",
				chunkRetriesEnvKey:   "2",
				sessionRetriesEnvKey: " 3 ",
				submitRetriesEnvKey:  "0",
				forceHTTPEnvKey:      "true",
				apiURLEnvKey:         "http://localhost:8080",
			},
			check: func(t *testing.T, s settings) {
				assert.Equal(t, 8, s.Chunk.Concurrency)
				assert.Equal(t, 2, s.Chunk.MaxRetryPerChunk)
				assert.Equal(t, 3, s.Session.Attempts)
				assert.Equal(t, 0, s.Submit.MaxAttempts)
				assert.True(t, s.API.ForceHTTP)
				assert.Equal(t, "http://localhost:8080", s.API.BaseURL)
			},
		},
		{
			name:    "Missing cookies",
			envVars: map[string]string{},
			wantErr: cookiesEnvKey,
		},
		{
			name:    "Invalid worker count",
			envVars: map[string]string{cookiesEnvKey: "a=b", workersEnvKey: "many"},
			wantErr: workersEnvKey,
		},
		{
			name:    "Zero workers",
			envVars: map[string]string{cookiesEnvKey: "a=b", workersEnvKey: "0"},
			wantErr: "at least 1",
		},
		{
			name:    "Unknown backend",
			envVars: map[string]string{backendEnvKey: "ftp"},
			wantErr: "unknown backend",
		},
		{
			name: "S3 backend",
			envVars: map[string]string{
				backendEnvKey:           "S3",
				s3BucketEnvKey:          "videos",
				s3RegionEnvKey:          "eu-west-1",
				s3AccessKeyIDEnvKey:     "key",
				s3SecretAccessKeyEnvKey: "secret",
				s3KeyPrefixEnvKey:       "raw",
				s3ChunkSizeEnvKey:       "16MB",
				workersEnvKey:           "4",
			},
			check: func(t *testing.T, s settings) {
				assert.Equal(t, backendS3, s.Backend)
				assert.Equal(t, "videos", s.S3.Bucket)
				assert.Equal(t, "raw", s.S3.KeyPrefix)
				assert.Equal(t, int64(16*1024*1024), s.S3.ChunkSize)
				assert.Equal(t, 4, s.S3.Concurrency)
				assert.Equal(t, "[REDACTED]", s.API.Redactor.Redact("secret"))
			},
		},
		{
			name: "S3 backend default chunk size",
			envVars: map[string]string{
				backendEnvKey:  "s3",
				s3BucketEnvKey: "videos",
				s3RegionEnvKey: "eu-west-1",
			},
			check: func(t *testing.T, s settings) {
				assert.Equal(t, int64(10*1024*1024), s.S3.ChunkSize)
				assert.Equal(t, 3, s.S3.Concurrency)
			},
		},
		{
			name:    "S3 backend without bucket",
			envVars: map[string]string{backendEnvKey: "s3", s3RegionEnvKey: "eu-west-1"},
			wantErr: s3BucketEnvKey,
		},
		{
			name: "S3 backend with invalid chunk size",
			envVars: map[string]string{
				backendEnvKey:     "s3",
				s3BucketEnvKey:    "videos",
				s3RegionEnvKey:    "eu-west-1",
				s3ChunkSizeEnvKey: "huge",
			},
			wantErr: s3ChunkSizeEnvKey,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := NewUploader(fakeEnvRepo{envVars: tt.envVars}, nil, nil, nil, nil, nil)

			s, err := uploader.loadSettings()

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func Test_evaluatePaths(t *testing.T) {
	testdataAbsPath, err := filepath.Abs("testdata")
	require.NoError(t, err)
	uploader := newTestUploader(nil, nil)

	tests := []struct {
		name  string
		paths []string
		want  []string
	}{
		{
			name:  "Single file path",
			paths: []string{"testdata/clip_a.mp4"},
			want:  []string{filepath.Join(testdataAbsPath, "clip_a.mp4")},
		},
		{
			name:  "Recursive pattern",
			paths: []string{"testdata/**/*.mp4"},
			want: []string{
				filepath.Join(testdataAbsPath, "clip_a.mp4"),
				filepath.Join(testdataAbsPath, "nested", "clip_b.mp4"),
			},
		},
		{
			name:  "Duplicates and missing paths are dropped",
			paths: []string{"testdata/clip_a.mp4", "testdata/*.mp4", "testdata/missing.mp4"},
			want:  []string{filepath.Join(testdataAbsPath, "clip_a.mp4")},
		},
		{
			name:  "File scheme",
			paths: []string{"file://testdata/nested/clip_b.mp4"},
			want:  []string{filepath.Join(testdataAbsPath, "nested", "clip_b.mp4")},
		},
		{
			name:  "Remote sources are kept",
			paths: []string{"https://example.com/v.mp4", "testdata/nested/clip_b.mp4"},
			want: []string{
				"https://example.com/v.mp4",
				filepath.Join(testdataAbsPath, "nested", "clip_b.mp4"),
			},
		},
		{
			name:  "No match",
			paths: []string{"testdata/**/*.mkv"},
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := uploader.evaluatePaths(tt.paths)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
