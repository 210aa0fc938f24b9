package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/upos-tools/go-uploader/v2/submission"
	"github.com/upos-tools/go-uploader/v2/upload/network"
	"github.com/upos-tools/go-uploader/v2/upload/network/chunkuploader"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

// fakeBackend stores chunk bytes in memory, keyed by the file's base name.
type fakeBackend struct {
	chunkSize int64
	// failSession makes AcquireSession fail for the named file.
	failSession string
	// failChunks makes every chunk of the named file fail.
	failChunks string
	// reject makes Finalize report the named file as not accepted.
	reject string

	mu        sync.Mutex
	received  map[string]map[int][]byte
	sessions  []string
	finalized []string
	aborted   []string
}

func newFakeBackend(chunkSize int64) *fakeBackend {
	return &fakeBackend{
		chunkSize: chunkSize,
		received:  map[string]map[int][]byte{},
	}
}

func (b *fakeBackend) Name() string {
	return "fake"
}

func (b *fakeBackend) AcquireSession(_ context.Context, path string, size int64) (*chunkuploader.Session, error) {
	name := filepath.Base(path)
	if name == b.failSession {
		return nil, fmt.Errorf("%w for %s: preupload: HTTP 500", network.ErrSessionUnavailable, name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = append(b.sessions, name)
	return &chunkuploader.Session{
		Path:        path,
		Filename:    name,
		EndpointURL: "upos://fake/ugc/n" + name,
		ChunkSize:   b.chunkSize,
		TotalSize:   size,
		UploadID:    "id-" + name,
		BizID:       int64(len(b.sessions)),
	}, nil
}

func (b *fakeBackend) Sender() chunkuploader.Sender {
	return chunkuploader.SenderFunc(func(_ context.Context, chunk chunkuploader.Chunk, body io.ReadSeeker) error {
		name := filepath.Base(chunk.Path)
		if name == b.failChunks {
			return errors.New("connection reset")
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.received[name] == nil {
			b.received[name] = map[int][]byte{}
		}
		b.received[name][chunk.Index] = data
		return nil
	})
}

func (b *fakeBackend) Finalize(_ context.Context, session *chunkuploader.Session) (network.FinalizeResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalized = append(b.finalized, session.Filename)

	ok := session.Filename != b.reject && len(b.received[session.Filename]) == session.NumChunks()
	return network.FinalizeResult{OK: ok, Details: map[string]any{"OK": ok}}, nil
}

func (b *fakeBackend) Abort(_ context.Context, session *chunkuploader.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aborted = append(b.aborted, session.Filename)
	return nil
}

func (b *fakeBackend) assembled(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []byte
	for i := 0; i < len(b.received[name]); i++ {
		out = append(out, b.received[name][i]...)
	}
	return string(out)
}

// submittingBackend also accepts works, answering with codes in order.
type submittingBackend struct {
	*fakeBackend
	codes    []int
	payloads []map[string]any
	covers   []string
}

func (b *submittingBackend) UploadCover(_ context.Context, path string) (string, error) {
	b.covers = append(b.covers, path)
	return "//i0.example.com/" + filepath.Base(path), nil
}

func (b *submittingBackend) Submit(_ context.Context, payload map[string]any) (submission.Result, error) {
	b.payloads = append(b.payloads, payload)
	code := 0
	if len(b.codes) > 0 {
		code, b.codes = b.codes[0], b.codes[1:]
	}
	return submission.Result{Code: code, Message: fmt.Sprintf("code %d", code)}, nil
}
