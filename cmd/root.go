package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/paulschiretz/pgl-treebackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-treebackup/pkg/config"
	"github.com/paulschiretz/pgl-treebackup/pkg/plog"
)

// Process exit codes.
const (
	ExitOK              = 0
	ExitError           = 1
	ExitTemplateWritten = 2
)

// ErrTemplateWritten is returned by RunBackup when no configuration existed and
// a template was written in its place.
var ErrTemplateWritten = errors.New("configuration template written, fill it in and run again")

// ExitCode maps the result of a command to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrTemplateWritten):
		return ExitTemplateWritten
	default:
		return ExitError
	}
}

// app holds the state shared by all commands of one invocation.
type app struct {
	stdin      io.Reader
	stdout     io.Writer
	log        *plog.Logger
	configPath string
	logLevel   string
	pause      bool
}

func newApp(stdin io.Reader, stdout io.Writer) *app {
	return &app{
		stdin:  stdin,
		stdout: stdout,
		log:    plog.New(stdout, plog.LevelInfo),
	}
}

// rootCommand builds the command tree. The root command itself runs a backup.
func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pgl-treebackup",
		Short: "Copy a list of directories into a timestamped backup folder",
		Long: buildinfo.Name + ` copies every directory listed in copyFrom of its JSON configuration
into a new <copyTo>/<YYYY.MM.DD_HH-mm-ss> folder and writes a log.txt next to the copies.
If the configuration file does not exist, an empty template is written instead.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunBackup(cmd.Context(), a.log, a.configPath, cmd.Flags())
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stdout)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", config.DefaultPath(), "path of the JSON configuration file")
	pf.StringVar(&a.logLevel, config.LogLevelFlag, "", "override the configured log level: Error, Info or Debug")
	pf.BoolVar(&a.pause, "pause", false, "wait for Enter before exiting when run in a terminal")

	root.AddCommand(a.initCommand(), a.validateCommand(), a.versionCommand())
	return root
}

func (a *app) initCommand() *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "init",
		Short: "Write an empty configuration template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunInit(a.log, a.configPath, force, a.stdin, a.stdout)
		},
	}
	c.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration without asking")
	return c
}

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and every configured path without copying",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunValidate(a.log, a.configPath, cmd.Flags())
		},
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunVersion(cmd.OutOrStdout(), buildinfo.Name, buildinfo.Version)
		},
	}
}

// waitForEnter blocks until a line is read from stdin, but only if --pause was
// given and stdin is a terminal.
func (a *app) waitForEnter() {
	if !a.pause {
		return
	}
	f, ok := a.stdin.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return
	}
	fmt.Fprint(a.stdout, "Press Enter to exit...")
	_, _ = bufio.NewReader(a.stdin).ReadString('\n')
}

// Execute runs the command line in args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	a := newApp(stdin, stdout)
	root := a.rootCommand()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, ErrTemplateWritten) {
		a.log.Error(buildinfo.Name+" exited with error", "error", err)
	}
	a.waitForEnter()
	return ExitCode(err)
}
