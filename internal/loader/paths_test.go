package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactMapsSrcToBuildDir(t *testing.T) {
	root := t.TempDir()
	artifact := filepath.Join(root, BuildDirName, "handlers", "api", "CreateUser.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(artifact), 0o755))
	require.NoError(t, os.WriteFile(artifact, []byte("package main\n"), 0o644))

	t.Run("relative src path", func(t *testing.T) {
		got, err := Artifact(root, "src/handlers/api/CreateUser.go")
		require.NoError(t, err)
		assert.Equal(t, artifact, got)
	})

	t.Run("absolute src path", func(t *testing.T) {
		got, err := Artifact(root, filepath.Join(root, "src", "handlers", "api", "CreateUser.go"))
		require.NoError(t, err)
		assert.Equal(t, artifact, got)
	})

	t.Run("path already in build dir", func(t *testing.T) {
		got, err := Artifact(root, artifact)
		require.NoError(t, err)
		assert.Equal(t, artifact, got)
	})

	t.Run("bare relative path", func(t *testing.T) {
		got, err := Artifact(root, "handlers/api/CreateUser.go")
		require.NoError(t, err)
		assert.Equal(t, artifact, got)
	})
}

func TestArtifactMissingNamesBothPathsAndBuildStep(t *testing.T) {
	root := t.TempDir()

	_, err := Artifact(root, "src/handlers/api/Nope.go")
	var missing *CompilationMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "src/handlers/api/Nope.go", missing.SourcePath)
	assert.Contains(t, missing.ArtifactPath, BuildDirName)
	assert.Contains(t, missing.Error(), "gantry build")
	assert.Contains(t, missing.Error(), missing.ArtifactPath)
	assert.Contains(t, missing.Error(), missing.SourcePath)
}
