// Package engine runs one backup: it creates the timestamped backup root, attaches
// the run log and mirrors every configured source directory into the root.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/paulschiretz/pgl-treebackup/pkg/config"
	"github.com/paulschiretz/pgl-treebackup/pkg/pathcopy"
	"github.com/paulschiretz/pgl-treebackup/pkg/pathgrammar"
	"github.com/paulschiretz/pgl-treebackup/pkg/plog"
	"github.com/paulschiretz/pgl-treebackup/pkg/preflight"
	"github.com/paulschiretz/pgl-treebackup/pkg/util"
)

// TimestampLayout names the backup root of a run, e.g. "2024.03.09_14-05-00".
const TimestampLayout = "2006.01.02_15-04-05"

// LogFileName is the run log created inside the backup root.
const LogFileName = "log.txt"

var (
	// ErrInvalidPaths is returned when the backup root or a source path is malformed.
	// Nothing has been written when it is returned.
	ErrInvalidPaths = errors.New("invalid backup paths")
	// ErrNoSources is returned when the configuration lists no source directories.
	ErrNoSources = errors.New("no source directories configured")
	// ErrCreateRoot is returned when the backup root cannot be created.
	ErrCreateRoot = errors.New("could not create backup root")
)

// Summary describes a finished or aborted run.
type Summary struct {
	Timestamp string
	Root      string
	pathcopy.Result
	Duration time.Duration
}

// Session performs backup runs.
type Session struct {
	log      *plog.Logger
	fs       pathcopy.FS
	now      func() time.Time
	validate *validator.Validate
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used to name the backup root.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithFS sets the file system the source trees are copied through.
func WithFS(fsys pathcopy.FS) Option {
	return func(s *Session) { s.fs = fsys }
}

// NewSession returns a Session that reports to log.
func NewSession(log *plog.Logger, opts ...Option) (*Session, error) {
	v := validator.New()
	if err := pathgrammar.RegisterValidation(v); err != nil {
		return nil, fmt.Errorf("could not register path validation: %w", err)
	}
	s := &Session{
		log:      log,
		now:      time.Now,
		validate: v,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fs == nil {
		s.fs = pathcopy.NewOSFS(pathcopy.DefaultBufferSize)
	}
	return s, nil
}

// Run backs up every source of cfg into a new timestamped directory below
// cfg.Destination.
//
// Malformed paths, an empty source list and an unusable destination abort the
// run before anything is written. Failures inside a source tree are logged and
// counted in the Summary but do not fail the run. A cancelled ctx stops the run
// between two nodes.
//
// The run log stays attached to the Session's Logger when Run returns so the
// caller can complete it. Closing the Logger is up to the caller.
func (s *Session) Run(ctx context.Context, cfg config.Config) (Summary, error) {
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	default:
	}

	start := s.now()
	summary := Summary{Timestamp: start.Format(TimestampLayout)}
	summary.Root = strings.TrimSuffix(cfg.Destination, "/") + "/" + summary.Timestamp
	s.log.Debug("Run started", "timestamp", summary.Timestamp)

	if invalid := s.invalidPaths(cfg.Destination, cfg.Sources); len(invalid) > 0 {
		s.log.Error("All configured paths must be valid directory paths, nothing was copied")
		return summary, fmt.Errorf("%w: %s", ErrInvalidPaths, strings.Join(invalid, ", "))
	}

	if len(cfg.Sources) == 0 {
		s.log.Error("No source directories to back up")
		return summary, ErrNoSources
	}

	if err := preflight.CheckBackupTargetAccessible(cfg.Destination); err != nil {
		s.log.Error("Backup destination is not usable", "path", cfg.Destination, "error", err)
		return summary, fmt.Errorf("%w: %w", ErrCreateRoot, err)
	}
	if free, err := preflight.FreeSpace(cfg.Destination); err != nil {
		s.log.Debug("Could not determine free space on destination", "error", err)
	} else {
		s.log.Debug("Free space on destination", "free", util.ByteCountIEC(int64(free)))
	}

	if err := os.MkdirAll(summary.Root, util.UserWritableDirPerms); err != nil {
		s.log.Error("Could not create backup root", "path", summary.Root, "error", err)
		return summary, fmt.Errorf("%w %s: %w", ErrCreateRoot, summary.Root, err)
	}

	// A missing run log only costs the file copy of the output.
	_ = s.log.Attach(summary.Root + "/" + LogFileName)

	s.log.Debug("Source directories to back up", "count", len(cfg.Sources))
	copier := pathcopy.New(s.fs, s.log)
	for _, src := range cfg.Sources {
		s.log.Info("Backing up source", "path", src)
		res, err := copier.CopyTree(ctx, src, summary.Root, 1)
		summary.Add(res)
		if err != nil {
			summary.Duration = s.now().Sub(start)
			s.log.Error("Backup interrupted", "error", err)
			return summary, fmt.Errorf("backup interrupted: %w", err)
		}
	}

	summary.Duration = s.now().Sub(start)
	s.log.Info("Backup finished", "root", summary.Root, "duration", summary.Duration.Round(time.Millisecond))
	summary.LogSummary(s.log, "Backup totals")
	return summary, nil
}

// invalidPaths logs and returns every malformed path among the destination
// and the sources.
func (s *Session) invalidPaths(destination string, sources []string) []string {
	var invalid []string
	if err := s.validate.Var(destination, pathgrammar.Tag); err != nil {
		s.log.Error("Backup destination path is not a valid directory path", "path", destination)
		invalid = append(invalid, destination)
	}
	if err := s.validate.Var(sources, "dive,"+pathgrammar.Tag); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			s.log.Error("Could not validate source paths", "error", err)
			return append(invalid, sources...)
		}
		for _, fe := range verrs {
			p := fmt.Sprint(fe.Value())
			s.log.Error("Source path is not a valid directory path", "path", p)
			invalid = append(invalid, p)
		}
	}
	return invalid
}
