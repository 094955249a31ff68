package pathcopy

import (
	"github.com/paulschiretz/pgl-treebackup/pkg/plog"
	"github.com/paulschiretz/pgl-treebackup/pkg/util"
)

// Result counts what one CopyTree call did. Results of separate calls are summed
// with Add.
type Result struct {
	FilesCopied    int
	DirsCreated    int
	BytesCopied    int64
	FilesFailed    int
	DirsFailed     int
	EntriesSkipped int
}

// Add accumulates other into r.
func (r *Result) Add(other Result) {
	r.FilesCopied += other.FilesCopied
	r.DirsCreated += other.DirsCreated
	r.BytesCopied += other.BytesCopied
	r.FilesFailed += other.FilesFailed
	r.DirsFailed += other.DirsFailed
	r.EntriesSkipped += other.EntriesSkipped
}

// Failures returns the number of nodes that could not be backed up.
func (r Result) Failures() int {
	return r.FilesFailed + r.DirsFailed
}

// LogSummary logs the totals at Info level.
func (r Result) LogSummary(log *plog.Logger, msg string) {
	log.Info(msg,
		"files_copied", r.FilesCopied,
		"dirs_created", r.DirsCreated,
		"bytes_copied", util.ByteCountIEC(r.BytesCopied),
	)
	if r.Failures() > 0 || r.EntriesSkipped > 0 {
		log.Info("Nodes not backed up",
			"files_failed", r.FilesFailed,
			"dirs_failed", r.DirsFailed,
			"entries_skipped", r.EntriesSkipped,
		)
	}
}
