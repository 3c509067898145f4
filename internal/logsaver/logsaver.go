// Package logsaver implements the Log Saver: backing up and merging the
// license tool's log file around a service restart, per spec §4.10.
package logsaver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/netixx/flexsentry/internal/xlog"
)

// ErrNoPreviousSave is returned by MergeLastLogs when BackupLog has never
// completed successfully.
var ErrNoPreviousSave = errors.New("logsaver: no previous saved log to merge")

// LogSaver backs up a log file to a save directory and can later merge
// the backup back into the (rotated) current log so that observers never
// see a gap. Safe for concurrent use: the original ported only one
// instance per fleet, but all state here is guarded by a mutex rather
// than relying on that assumption.
type LogSaver struct {
	mu          sync.Mutex
	saveDir     string
	logFilePath string
	lastSave    string
}

// New creates a LogSaver backing up logFilePath into saveDir.
func New(saveDir, logFilePath string) *LogSaver {
	return &LogSaver{saveDir: saveDir, logFilePath: logFilePath}
}

// LastSave returns the path of the most recent successful backup, or ""
// if none has happened yet.
func (l *LogSaver) LastSave() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSave
}

// BackupLog copies the log file into the save directory, naming it with
// the current timestamp. If the save directory is missing it is created;
// if the log file is missing, it warns and returns without error (there
// is nothing to back up yet).
func (l *LogSaver) BackupLog(ctx context.Context, now time.Time) error {
	log := xlog.FromContext(ctx, "logsaver")
	log.Info().Msg("saving logs")

	if err := os.MkdirAll(l.saveDir, 0o755); err != nil {
		return fmt.Errorf("logsaver: create save dir: %w", err)
	}

	if _, err := os.Stat(l.logFilePath); errors.Is(err, os.ErrNotExist) {
		log.Warn().Msg("no log file found, nothing to backup")
		return nil
	} else if err != nil {
		return fmt.Errorf("logsaver: stat log file: %w", err)
	}

	dest := filepath.Join(l.saveDir, fmt.Sprintf("log-%s.log", now.Format("2006-01-02_15_04")))
	if err := copyFile(l.logFilePath, dest); err != nil {
		log.Warn().Err(err).Msg("error during log backup")
		return err
	}

	l.mu.Lock()
	l.lastSave = dest
	l.mu.Unlock()

	log.Info().Str("path", dest).Msg("log saved")
	return nil
}

// MergeLastLogs prepends the last backup's contents to the current log
// file, atomically from an observer's perspective: readers never see a
// truncated log, because the merged content is written to a temp file
// and renamed into place (github.com/google/renameio).
func (l *LogSaver) MergeLastLogs(ctx context.Context) error {
	log := xlog.FromContext(ctx, "logsaver")

	l.mu.Lock()
	lastSave := l.lastSave
	l.mu.Unlock()

	if lastSave == "" {
		log.Warn().Msg("no previous saved log to merge")
		return ErrNoPreviousSave
	}

	log.Info().Msg("merging logs")

	pending, err := renameio.NewPendingFile(l.logFilePath)
	if err != nil {
		log.Warn().Err(err).Msg("error while merging logs")
		return fmt.Errorf("logsaver: open pending file: %w", err)
	}
	defer pending.Cleanup()

	if err := appendFileContents(pending, lastSave); err != nil {
		log.Warn().Err(err).Msg("error while merging logs")
		return err
	}
	if err := appendFileContents(pending, l.logFilePath); err != nil {
		log.Warn().Err(err).Msg("error while merging logs")
		return err
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		log.Warn().Err(err).Msg("error while merging logs")
		return fmt.Errorf("logsaver: atomic replace: %w", err)
	}

	log.Info().Msg("logs merged successfully")
	return nil
}

func appendFileContents(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("logsaver: open %s: %w", path, err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	pending, err := renameio.NewPendingFile(dst)
	if err != nil {
		return err
	}
	defer pending.Cleanup()

	if _, err := io.Copy(pending, in); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}
