package upload

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// evaluatePaths expands glob patterns and drops local paths that don't exist. Remote sources are kept as they are.
func (u *Uploader) evaluatePaths(paths []string) ([]string, error) {
	// Expand wildcard paths
	var expandedPaths []string
	for _, path := range paths {
		path = trimFileScheme(path)
		if isRemote(path) || !strings.Contains(path, "*") {
			expandedPaths = append(expandedPaths, path)
			continue
		}

		base, pattern := doublestar.SplitPattern(path)
		absBase, err := u.pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), pattern, doublestar.WithNoFollow(), doublestar.WithFilesOnly())
		if err != nil {
			u.logger.Warnf("Error in path pattern '%s': %s", path, err)
			continue
		}
		if len(matches) == 0 {
			u.logger.Warnf("No match for path pattern: %s", path)
			continue
		}

		for _, match := range matches {
			expandedPaths = append(expandedPaths, filepath.Join(base, match))
		}
	}

	// Validate and sanitize paths
	var finalPaths []string
	seen := map[string]bool{}
	for _, path := range expandedPaths {
		if isRemote(path) {
			finalPaths = append(finalPaths, path)
			continue
		}

		absPath, err := u.pathModifier.AbsPath(path)
		if err != nil {
			u.logger.Warnf("Failed to parse path %s, error: %s", path, err)
			continue
		}

		exists, err := u.pathChecker.IsPathExists(absPath)
		if err != nil {
			u.logger.Warnf("Failed to check path %s, error: %s", absPath, err)
		}
		if !exists {
			u.logger.Warnf("Video path doesn't exist: %s", path)
			continue
		}
		if seen[absPath] {
			continue
		}
		seen[absPath] = true

		finalPaths = append(finalPaths, absPath)
	}

	return finalPaths, nil
}
