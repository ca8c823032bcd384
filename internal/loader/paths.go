package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuildDirName is the directory, relative to the project root, where
// staged handler artifacts live. Mirrors the src/ tree.
const BuildDirName = ".gantry"

// CompilationMissingError reports that a handler's staged artifact does
// not exist. The message names the expected build step because this is
// the first thing a developer hits on a fresh checkout.
type CompilationMissingError struct {
	SourcePath   string
	ArtifactPath string
}

func (e *CompilationMissingError) Error() string {
	return fmt.Sprintf(
		"compiled handler not found: expected %s (from source %s); run 'gantry build' to stage handlers",
		e.ArtifactPath, e.SourcePath,
	)
}

// Artifact resolves a handler source path to its staged artifact under
// the build directory.
//
// A path containing a src/ segment maps that segment to .gantry/; a
// path already inside the build directory is used as-is; anything else
// is looked up under projectRoot/.gantry/. The artifact must exist, or
// the result is a CompilationMissingError.
func Artifact(projectRoot, handlerPath string) (string, error) {
	slash := filepath.ToSlash(handlerPath)

	var artifact string
	switch {
	case strings.Contains(slash, BuildDirName+"/"):
		artifact = handlerPath
	case strings.Contains(slash, "/src/"):
		artifact = filepath.FromSlash(strings.Replace(slash, "/src/", "/"+BuildDirName+"/", 1))
	case strings.HasPrefix(slash, "src/"):
		artifact = filepath.Join(projectRoot, BuildDirName, strings.TrimPrefix(slash, "src/"))
	case filepath.IsAbs(handlerPath):
		artifact = handlerPath
	default:
		artifact = filepath.Join(projectRoot, BuildDirName, handlerPath)
	}

	if _, err := os.Stat(artifact); err != nil {
		return "", &CompilationMissingError{SourcePath: handlerPath, ArtifactPath: artifact}
	}
	return artifact, nil
}
