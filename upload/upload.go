// Package upload uploads local or remote videos to a backend and submits them as works.
package upload

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
	"github.com/upos-tools/go-uploader/v2/secretkeys"
	"github.com/upos-tools/go-uploader/v2/submission"
	"github.com/upos-tools/go-uploader/v2/upload/network"
	"github.com/upos-tools/go-uploader/v2/upload/network/chunkuploader"
)

// ErrNoVideos is returned when none of the input paths point to an existing video.
var ErrNoVideos = errors.New("no video found at the given paths")

// ErrSubmitUnsupported is returned by Submit when the backend has no submission endpoint.
var ErrSubmitUnsupported = errors.New("backend does not support submitting works")

// ErrCoverUnsupported is returned by UploadCover when the backend does not host cover images.
var ErrCoverUnsupported = errors.New("backend does not support cover images")

const abortTimeout = 30 * time.Second

// UploadInput is the information that comes from the callers of Upload.
type UploadInput struct {
	Verbose bool
	// Paths of the videos. Glob patterns and http(s) URLs are accepted.
	Paths []string
}

// UploadedVideo is a video the remote service accepted.
type UploadedVideo struct {
	// Path is the local file that was uploaded.
	Path string
	// Source is the path or URL the video was given as.
	Source   string
	Endpoint string
	UploadID string
	BizID    int64
	Size     int64
}

// Filename returns the name the remote service knows the video by.
func (v UploadedVideo) Filename() string {
	name := path.Base(v.Endpoint)
	return strings.TrimSuffix(name, path.Ext(name))
}

// Part returns the submission part of the video.
func (v UploadedVideo) Part(title, description string) submission.Part {
	return submission.Part{
		Title:       title,
		Description: description,
		Filename:    v.Filename(),
		BizID:       v.BizID,
	}
}

// Uploader uploads videos and submits works.
type Uploader struct {
	envRepo      env.Repository
	logger       log.Logger
	pathProvider pathutil.PathProvider
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
	backend      network.Backend
}

// NewUploader creates a new Uploader instance. `backend` can be nil, unless you want to provide a custom `Backend` implementation.
// A nil backend is built from the environment on first use.
func NewUploader(
	envRepo env.Repository,
	logger log.Logger,
	pathProvider pathutil.PathProvider,
	pathModifier pathutil.PathModifier,
	pathChecker pathutil.PathChecker,
	backend network.Backend,
) *Uploader {
	return &Uploader{
		envRepo:      envRepo,
		logger:       logger,
		pathProvider: pathProvider,
		pathModifier: pathModifier,
		pathChecker:  pathChecker,
		backend:      backend,
	}
}

type localVideo struct {
	source string
	path   string
	size   int64
}

// Upload sends every video of input to the backend.
// Videos are uploaded in a single run of the chunk engine, so the worker pool is shared between files.
// A failed session negotiation aborts the whole upload before any chunk is sent.
func (u *Uploader) Upload(ctx context.Context, input UploadInput) ([]UploadedVideo, error) {
	u.logger.TDebugf("Upload start")
	defer func() {
		u.logger.TDebugf("Upload done")
	}()

	config, err := u.createConfig(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse inputs: %w", err)
	}
	if config.Verbose {
		u.logger.EnableDebugLog(true)
	}
	u.logger.TDebugf("Config created")
	u.logger.Debugf("Values of %s are redacted from logs", secretkeys.NewManager().Format(config.SecretKeys))

	backend, err := u.resolveBackend(ctx, config.settings)
	if err != nil {
		return nil, err
	}

	tracker := newUploadTracker(backend.Name(), u.envRepo, u.logger)
	defer tracker.wait()

	videos, err := u.localVideos(ctx, config.Paths)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, ErrNoVideos
	}

	u.logger.Println()
	u.logger.Infof("Opening upload sessions...")
	sessions := make([]*chunkuploader.Session, 0, len(videos))
	var totalSize int64
	for _, v := range videos {
		start := time.Now()
		session, err := backend.AcquireSession(ctx, v.path, v.size)
		if err != nil {
			u.abortSessions(ctx, backend, sessions)
			return nil, err
		}
		tracker.logSessionAcquired(time.Since(start), session.NumChunks())
		u.logger.Printf("%s: %d chunks of %s", v.path, session.NumChunks(), units.HumanSizeWithPrecision(float64(session.ChunkSize), 3))
		sessions = append(sessions, session)
		totalSize += v.size
	}

	u.logger.Println()
	u.logger.Infof("Uploading %s in %d file(s)...", units.HumanSizeWithPrecision(float64(totalSize), 3), len(sessions))
	transport := chunkuploader.NewTransport(backend.Sender(), config.Chunk, u.logger)
	engine := chunkuploader.New(config.Chunk, transport, chunkuploader.NewLogProgressSink(u.logger), u.logger)

	uploadStart := time.Now()
	result := engine.Run(ctx, concatChunks(sessions), chunkuploader.NewProgress())
	uploadTime := time.Since(uploadStart).Round(time.Second)
	tracker.logChunksDrained(uploadTime, totalSize, result)

	stats := transport.Stats()
	u.logger.Debugf("Chunk attempts: %d finished, %d failed, average %s, %s in total",
		stats.FinishedCount(), stats.FailedCount(), stats.Average(), stats.TotalDuration())
	if result.Dirty {
		for p := range result.FailedPaths() {
			u.logger.Warnf("Some chunks of %s could not be uploaded", p)
		}
	} else {
		u.logger.Donef("All chunks uploaded in %s", uploadTime)
	}

	if err := ctx.Err(); err != nil {
		u.abortSessions(ctx, backend, sessions)
		return nil, err
	}

	u.logger.Println()
	u.logger.Infof("Checking upload status...")
	uploaded := make([]UploadedVideo, 0, len(sessions))
	for i, session := range sessions {
		status, err := backend.Finalize(ctx, session)
		if err != nil {
			return uploaded, err
		}
		tracker.logFinalized(status.OK)
		if err := status.Err(); err != nil {
			return uploaded, fmt.Errorf("%s: %w", session.Path, err)
		}
		u.logger.Donef("%s uploaded", session.Path)
		uploaded = append(uploaded, UploadedVideo{
			Path:     session.Path,
			Source:   videos[i].source,
			Endpoint: session.EndpointURL,
			UploadID: session.UploadID,
			BizID:    session.BizID,
			Size:     session.TotalSize,
		})
	}

	return uploaded, nil
}

// Submit publishes work. With perPart every part is submitted as its own work.
func (u *Uploader) Submit(ctx context.Context, work submission.Work, perPart bool) (submission.Outcome, error) {
	s, err := u.loadSettings()
	if err != nil {
		return submission.Outcome{}, fmt.Errorf("failed to parse inputs: %w", err)
	}
	backend, err := u.resolveBackend(ctx, s)
	if err != nil {
		return submission.Outcome{}, err
	}
	endpoint, ok := backend.(submission.Endpoint)
	if !ok {
		return submission.Outcome{}, fmt.Errorf("%s: %w", backend.Name(), ErrSubmitUnsupported)
	}

	return submission.NewSubmitter(endpoint, s.Submit, u.logger).Submit(ctx, work, perPart)
}

// UploadCover uploads the image at coverPath and returns the URL to use as submission.Work.Cover.
func (u *Uploader) UploadCover(ctx context.Context, coverPath string) (string, error) {
	s, err := u.loadSettings()
	if err != nil {
		return "", fmt.Errorf("failed to parse inputs: %w", err)
	}
	backend, err := u.resolveBackend(ctx, s)
	if err != nil {
		return "", err
	}
	covers, ok := backend.(network.CoverUploader)
	if !ok {
		return "", fmt.Errorf("%s: %w", backend.Name(), ErrCoverUnsupported)
	}

	absPath, err := u.pathModifier.AbsPath(coverPath)
	if err != nil {
		return "", err
	}
	exists, err := u.pathChecker.IsPathExists(absPath)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("cover image %s does not exist", coverPath)
	}

	url, err := covers.UploadCover(ctx, absPath)
	if err != nil {
		return "", err
	}
	u.logger.Donef("Cover uploaded: %s", url)
	return url, nil
}

// abortSessions releases sessions that will not be finalized, even when ctx is already cancelled.
func (u *Uploader) abortSessions(ctx context.Context, backend network.Backend, sessions []*chunkuploader.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	for _, session := range sessions {
		if err := backend.Abort(ctx, session); err != nil {
			u.logger.Warnf("Failed to abort upload of %s: %s", session.Path, err)
		}
	}
}

func (u *Uploader) resolveBackend(ctx context.Context, s settings) (network.Backend, error) {
	if u.backend != nil {
		return u.backend, nil
	}

	var backend network.Backend
	var err error
	switch s.Backend {
	case backendS3:
		backend, err = network.NewS3Backend(ctx, s.S3, s.Session, u.logger)
	default:
		backend, err = network.NewUposBackend(s.API, s.Session, u.logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", s.Backend, err)
	}
	u.backend = backend
	return backend, nil
}

func (u *Uploader) localVideos(ctx context.Context, paths []string) ([]localVideo, error) {
	var videos []localVideo
	for _, source := range paths {
		local := source
		if isRemote(source) {
			var err error
			local, err = u.fetch(ctx, source)
			if err != nil {
				return nil, err
			}
		}

		info, err := os.Stat(local)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			u.logger.Warnf("%s is a directory, skipping", source)
			continue
		}
		videos = append(videos, localVideo{source: source, path: local, size: info.Size()})
	}
	return videos, nil
}

func concatChunks(sessions []*chunkuploader.Session) iter.Seq[chunkuploader.Chunk] {
	return func(yield func(chunkuploader.Chunk) bool) {
		for _, s := range sessions {
			for c := range s.Chunks() {
				if !yield(c) {
					return
				}
			}
		}
	}
}
