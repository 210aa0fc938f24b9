package upload

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/docker/go-units"
	"github.com/upos-tools/go-uploader/v2/secretkeys"
	"github.com/upos-tools/go-uploader/v2/submission"
	"github.com/upos-tools/go-uploader/v2/upload/network"
	"github.com/upos-tools/go-uploader/v2/upload/network/chunkuploader"
)

const (
	apiURLEnvKey         = "UPLOAD_API_URL"
	cookiesEnvKey        = "UPLOAD_COOKIES"
	backendEnvKey        = "UPLOAD_BACKEND"
	workersEnvKey        = "UPLOAD_WORKERS"
	chunkRetriesEnvKey   = "UPLOAD_CHUNK_RETRIES"
	sessionRetriesEnvKey = "UPLOAD_SESSION_RETRIES"
	submitRetriesEnvKey  = "UPLOAD_SUBMIT_RETRIES"
	forceHTTPEnvKey      = "UPLOAD_FORCE_HTTP"

	s3BucketEnvKey          = "UPLOAD_S3_BUCKET"
	s3RegionEnvKey          = "UPLOAD_S3_REGION"
	s3AccessKeyIDEnvKey     = "UPLOAD_S3_ACCESS_KEY_ID"
	s3SecretAccessKeyEnvKey = "UPLOAD_S3_SECRET_ACCESS_KEY"
	s3EndpointEnvKey        = "UPLOAD_S3_ENDPOINT"
	s3KeyPrefixEnvKey       = "UPLOAD_S3_KEY_PREFIX"
	s3ChunkSizeEnvKey       = "UPLOAD_S3_CHUNK_SIZE"
)

const (
	backendUpos = "upos"
	backendS3   = "s3"
)

const defaultS3ChunkSize = 10 * 1024 * 1024

type settings struct {
	Backend string
	API     network.APIParams
	S3      network.S3Params
	Chunk   chunkuploader.Config
	Session network.SessionConfig
	Submit  submission.Config
	// SecretKeys name the env vars whose values are redacted from logs.
	SecretKeys []string
}

type uploadConfig struct {
	settings
	Verbose bool
	Paths   []string
}

func (u *Uploader) createConfig(input UploadInput) (uploadConfig, error) {
	s, err := u.loadSettings()
	if err != nil {
		return uploadConfig{}, err
	}

	finalPaths, err := u.evaluatePaths(input.Paths)
	u.logger.TDebugf("Final paths evaluated")
	if err != nil {
		return uploadConfig{}, fmt.Errorf("failed to parse paths: %w", err)
	}
	if len(finalPaths) == 0 {
		return uploadConfig{}, ErrNoVideos
	}

	return uploadConfig{
		settings: s,
		Verbose:  input.Verbose,
		Paths:    finalPaths,
	}, nil
}

func (u *Uploader) loadSettings() (settings, error) {
	chunk := chunkuploader.DefaultConfig()
	session := network.DefaultSessionConfig()
	submit := submission.DefaultConfig()

	var err error
	if chunk.Concurrency, err = intFromEnv(u.envRepo, workersEnvKey, chunk.Concurrency); err != nil {
		return settings{}, err
	}
	if chunk.Concurrency < 1 {
		return settings{}, fmt.Errorf("%s should be at least 1", workersEnvKey)
	}
	if chunk.MaxRetryPerChunk, err = intFromEnv(u.envRepo, chunkRetriesEnvKey, chunk.MaxRetryPerChunk); err != nil {
		return settings{}, err
	}
	if session.Attempts, err = intFromEnv(u.envRepo, sessionRetriesEnvKey, session.Attempts); err != nil {
		return settings{}, err
	}
	// non-positive values are allowed here and mean a single attempt
	if submit.MaxAttempts, err = intFromEnv(u.envRepo, submitRetriesEnvKey, submit.MaxAttempts); err != nil {
		return settings{}, err
	}

	secretKeys := secretkeys.NewManager().Load(u.envRepo)
	redactor := secretkeys.NewRedactor(u.envRepo, secretKeys)

	s := settings{
		Backend: strings.ToLower(strings.TrimSpace(u.envRepo.Get(backendEnvKey))),
		Chunk:   chunk,
		Session: session,
		Submit:  submit,
		API: network.APIParams{
			BaseURL:   u.envRepo.Get(apiURLEnvKey),
			Cookies:   u.envRepo.Get(cookiesEnvKey),
			ForceHTTP: u.envRepo.Get(forceHTTPEnvKey) == "true",
			Redactor:  redactor,
		},
		SecretKeys: secretKeys,
	}
	if s.Backend == "" {
		s.Backend = backendUpos
	}

	switch s.Backend {
	case backendUpos:
		if s.API.Cookies == "" {
			return settings{}, fmt.Errorf("the secret '%s' is not defined", cookiesEnvKey)
		}
	case backendS3:
		s.S3, err = s3ParamsFromEnv(u.envRepo, chunk.Concurrency)
		if err != nil {
			return settings{}, err
		}
	default:
		return settings{}, fmt.Errorf("unknown backend %q, valid values are %s and %s", s.Backend, backendUpos, backendS3)
	}

	return s, nil
}

func s3ParamsFromEnv(envRepo env.Repository, concurrency int) (network.S3Params, error) {
	params := network.S3Params{
		Bucket:          envRepo.Get(s3BucketEnvKey),
		Region:          envRepo.Get(s3RegionEnvKey),
		AccessKeyID:     envRepo.Get(s3AccessKeyIDEnvKey),
		SecretAccessKey: envRepo.Get(s3SecretAccessKeyEnvKey),
		Endpoint:        envRepo.Get(s3EndpointEnvKey),
		KeyPrefix:       envRepo.Get(s3KeyPrefixEnvKey),
		ChunkSize:       defaultS3ChunkSize,
		Concurrency:     concurrency,
	}
	if params.Bucket == "" {
		return network.S3Params{}, fmt.Errorf("%s is not defined", s3BucketEnvKey)
	}
	if params.Region == "" {
		return network.S3Params{}, fmt.Errorf("%s is not defined", s3RegionEnvKey)
	}

	if value := envRepo.Get(s3ChunkSizeEnvKey); value != "" {
		size, err := units.RAMInBytes(value)
		if err != nil {
			return network.S3Params{}, fmt.Errorf("invalid %s: %w", s3ChunkSizeEnvKey, err)
		}
		params.ChunkSize = size
	}
	return params, nil
}

func intFromEnv(envRepo env.Repository, key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(envRepo.Get(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
