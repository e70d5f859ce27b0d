package build

import (
	"errors"
	"fmt"
)

// Each step of Build wraps its failure in one of these.
var (
	ErrDependencyInstall = errors.New("dependency install failed")
	ErrDownload          = errors.New("download failed")
	ErrExtraction        = errors.New("extraction failed")
	ErrBuild             = errors.New("build failed")
	ErrPack              = errors.New("pack failed")
	ErrUpload            = errors.New("upload failed")
)

// ScriptError reports a script or command that exited non-zero.
type ScriptError struct {
	Name     string
	ExitCode int
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Name, e.ExitCode)
}
