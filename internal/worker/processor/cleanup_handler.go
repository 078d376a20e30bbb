package processor

import (
	stderrors "errors"
	"io/fs"
	"os"

	"chatreel/internal/pkg/logger"
)

// removeTemp deletes a render's local output. A missing file is fine: the
// engine may have failed before creating it.
func removeTemp(log *logger.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		log.Warn("failed to remove temp output", "path", path, "error", err.Error())
	}
}
