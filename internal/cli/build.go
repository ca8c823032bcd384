package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gantry-run/gantry/internal/loader"
)

// NewBuildCommand creates the build command, which stages handler
// sources from src/ into the build directory where workers load them.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Stage handler sources into the build directory",
		Long: `Stage handler sources.

Copies every .go file under src/handlers/ into the build directory
(` + loader.BuildDirName + `), preserving layout. Workers only load staged
artifacts; an unstaged handler fails invocation with a message pointing
here.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}
			staged, err := stageHandlers(rootOpts.Project, formatter)
			if err != nil {
				return WrapExitError(ExitCommandError, "build failed", err)
			}
			return formatter.Success(map[string]any{
				"staged":    staged,
				"build_dir": loader.BuildDirName,
			})
		},
	}
	return cmd
}

// stageHandlers copies src/handlers/**/*.go into the build directory
// and returns how many files were staged.
func stageHandlers(projectRoot string, formatter *OutputFormatter) (int, error) {
	srcRoot := filepath.Join(projectRoot, "src", "handlers")
	if _, err := os.Stat(srcRoot); err != nil {
		return 0, fmt.Errorf("no handler sources at %s: %w", srcRoot, err)
	}
	buildRoot := filepath.Join(projectRoot, loader.BuildDirName, "handlers")

	staged := 0
	err := filepath.WalkDir(srcRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(buildRoot, rel)
		if err := copyFile(path, dst); err != nil {
			return fmt.Errorf("stage %s: %w", rel, err)
		}
		formatter.VerboseLog("staged %s", rel)
		staged++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return staged, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
