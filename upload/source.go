package upload

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/melbahja/got"
)

const fileScheme = "file://"

// trimFileScheme turns a file:// source into a plain local path.
func trimFileScheme(p string) string {
	return strings.TrimPrefix(p, fileScheme)
}

func isRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// fetch downloads a remote video into a temporary directory and returns its local path.
func (u *Uploader) fetch(ctx context.Context, source string) (string, error) {
	parsed, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		name = "video"
	}

	dir, err := u.pathProvider.CreateTempDir("video-upload")
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, name)

	u.logger.Printf("Downloading %s", source)
	client := retryhttp.NewClient(u.logger).StandardClient()
	if err := downloadFile(ctx, client, source, dest); err != nil {
		return "", fmt.Errorf("download %s: %w", source, err)
	}
	u.logger.Debugf("Downloaded to %s", dest)

	return dest, nil
}

func downloadFile(ctx context.Context, client *http.Client, url string, dest string) error {
	downloader := got.New()
	downloader.Client = client

	return downloader.Do(got.NewDownload(ctx, url, dest))
}
