package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"

	devenv "casesync-backend/dev/env"
)

// FilesystemOutput writes each instrumented http exchange to <directory>/<id>.
type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput clears dir, which may start with <dev_state>. It is
// only used for verbose local runs so setup failures panic.
func NewFilesystemOutput(dir string) FilesystemOutput {
	resolved, err := devenv.ResolvePath(dir)
	if err != nil {
		panic(err)
	}
	err = os.RemoveAll(resolved)
	if err != nil {
		panic(err)
	}
	err = os.MkdirAll(resolved, 0777)
	if err != nil {
		panic(err)
	}
	return FilesystemOutput{directory: resolved}
}

func (o FilesystemOutput) Write(id string, contents string) {
	path := filepath.Join(o.directory, id+".txt")
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write http dump", "path", path, "err", err)
	}
}
