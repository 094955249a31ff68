package cmd

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/paulschiretz/pgl-treebackup/pkg/config"
	"github.com/paulschiretz/pgl-treebackup/pkg/engine"
	"github.com/paulschiretz/pgl-treebackup/pkg/pathgrammar"
	"github.com/paulschiretz/pgl-treebackup/pkg/plog"
	"github.com/paulschiretz/pgl-treebackup/pkg/preflight"
)

// RunValidate loads the configuration and reports on every configured path
// without writing anything.
func RunValidate(log *plog.Logger, configPath string, flags *pflag.FlagSet) error {
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.SetLevel(cfg.Level())
	log.Info("Configuration is well-formed", "path", configPath)

	problems := 0
	if !pathgrammar.Valid(cfg.Destination) {
		log.Indent(1).Error("Invalid destination path", "copyTo", cfg.Destination)
		problems++
	} else if err := preflight.CheckBackupTargetAccessible(cfg.Destination); err != nil {
		log.Indent(1).Error("Destination not usable", "copyTo", cfg.Destination, "error", err)
		problems++
	} else {
		log.Indent(1).Info("Destination ok", "copyTo", cfg.Destination)
	}

	if len(cfg.Sources) == 0 {
		log.Indent(1).Error("No source directories configured")
		problems++
	}
	for _, src := range cfg.Sources {
		if !pathgrammar.Valid(src) {
			log.Indent(1).Error("Invalid source path", "copyFrom", src)
			problems++
			continue
		}
		// Unreadable sources are skipped during a run, not fatal.
		if err := preflight.CheckBackupSourceAccessible(src); err != nil {
			log.Indent(1).Info("Source not accessible, it would be skipped", "copyFrom", src, "error", err)
			continue
		}
		log.Indent(1).Info("Source ok", "copyFrom", src)
	}

	if problems > 0 {
		return fmt.Errorf("%w: %d problem(s) found", engine.ErrInvalidPaths, problems)
	}
	return nil
}
