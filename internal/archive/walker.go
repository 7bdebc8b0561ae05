package archive

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Walker finds archives below a root directory
type Walker struct {
	logger *logrus.Logger
}

// NewWalker creates a new walker
func NewWalker(logger *logrus.Logger) *Walker {
	return &Walker{logger: logger}
}

// Walk calls fn for every regular file under root whose extension equals
// ext, ignoring case. Unreadable directories and Unarchiver work
// directories are skipped.
// Walk returns once the traversal is exhausted or fn fails.
func (w *Walker) Walk(ctx context.Context, root, ext string, fn func(path string) error) error {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			// The root itself being unreadable is fatal
			if path == root {
				return err
			}
			w.logger.WithFields(logrus.Fields{
				"path":  path,
				"error": err.Error(),
			}).Warn("Skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), WorkDirPrefix) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !MatchExtension(path, ext) {
			return nil
		}

		return fn(path)
	})
}

// MatchExtension reports whether path ends with ext, ignoring case
func MatchExtension(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}
