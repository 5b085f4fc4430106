package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	filePrefix  = "tipforge-"
	fileSuffix  = ".jsonl"
	dateLayout  = "2006-01-02"
	symlinkName = "latest"
)

// FileWriter appends JSON log lines to one file per day under a debug
// directory, named tipforge-YYYY-MM-DD.jsonl, and keeps a "latest" symlink
// pointing at the current file.
type FileWriter struct {
	dir  string
	mu   sync.Mutex
	file *os.File
	date string
}

// NewFileWriter creates the debug directory if needed and opens today's file.
func NewFileWriter(dir string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating debug log dir: %w", err)
	}

	w := &FileWriter{dir: dir}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openForDate(time.Now().Format(dateLayout)); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer, rolling over to a new file at midnight.
func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if today := time.Now().Format(dateLayout); today != w.date {
		if err := w.openForDate(today); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

// Close closes the current day's file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// openForDate opens the file for the given date and repoints the symlink.
// Caller holds w.mu.
func (w *FileWriter) openForDate(date string) error {
	if w.file != nil {
		w.file.Close()
	}

	name := filePrefix + date + fileSuffix
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	w.file = f
	w.date = date

	// Symlink update is best effort: create aside, then rename over.
	link := filepath.Join(w.dir, symlinkName)
	tmp := link + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(name, tmp); err == nil {
		_ = os.Rename(tmp, link)
	}
	return nil
}

// Cleanup removes debug log files older than retentionDays. Files that do
// not follow the tipforge-YYYY-MM-DD.jsonl pattern are left alone.
func Cleanup(dir string, retentionDays int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		date, err := time.Parse(dateLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err != nil {
			continue
		}
		if date.Before(cutoff) {
			os.Remove(filepath.Join(dir, name))
		}
	}
}
