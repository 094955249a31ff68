package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/paulschiretz/pgl-treebackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-treebackup/pkg/config"
	"github.com/paulschiretz/pgl-treebackup/pkg/plog"
)

// RunInit writes the configuration template to configPath. An existing file is
// only overwritten after the user confirms on in, or with force.
func RunInit(log *plog.Logger, configPath string, force bool, in io.Reader, out io.Writer) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "WARNING: Configuration file already exists at %s.\n", configPath)
			fmt.Fprintln(out, "Overwriting it with an empty template discards all configured paths.")
			if !PromptForConfirmation(in, out, "Are you sure you want to continue?", false) {
				log.Info(buildinfo.Name + " init operation canceled.")
				return nil
			}
		}
	}

	if err := config.SaveTemplate(configPath); err != nil {
		return fmt.Errorf("could not write configuration template: %w", err)
	}
	log.Info("Configuration template written", "path", configPath)
	return nil
}

// PromptForConfirmation writes a yes/no question to out and reads one line of
// answer from in. An empty answer, or no answer at all, selects defaultYes.
func PromptForConfirmation(in io.Reader, out io.Writer, prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Fprintf(out, "%s %s: ", prompt, suffix)

	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	switch answer {
	case "":
		return defaultYes
	case "y", "yes":
		return true
	default:
		return false
	}
}
