package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/paulschiretz/pgl-treebackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-treebackup/pkg/config"
	"github.com/paulschiretz/pgl-treebackup/pkg/engine"
	"github.com/paulschiretz/pgl-treebackup/pkg/plog"
)

// RunBackup loads the configuration at configPath and performs one backup run.
// A missing configuration is replaced by a template and ErrTemplateWritten is returned.
func RunBackup(ctx context.Context, log *plog.Logger, configPath string, flags *pflag.FlagSet) error {
	cfg, err := config.Load(configPath, flags)
	switch {
	case errors.Is(err, config.ErrNotFound):
		log.Error("Configuration file not found", "path", configPath)
		if err := config.SaveTemplate(configPath); err != nil {
			return fmt.Errorf("could not write configuration template: %w", err)
		}
		log.Info("Empty configuration template created and awaiting completion", "path", configPath)
		return ErrTemplateWritten
	case errors.Is(err, config.ErrFormat):
		log.Error("Configuration does not have the required format", "path", configPath)
		return err
	case err != nil:
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.SetLevel(cfg.Level())
	log.Debug("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())
	cfg.LogSummary(log)

	session, err := engine.NewSession(log)
	if err != nil {
		return err
	}
	// Run leaves the run log attached so the final record reaches it too.
	defer log.Close()

	startTime := time.Now()
	if _, err := session.Run(ctx, cfg); err != nil {
		return err // Logged with full details by Execute.
	}
	log.Info(buildinfo.Name+" finished successfully.", "duration", time.Since(startTime).Round(time.Millisecond))
	return nil
}
