package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupTimeFormat = "20060102T150405.000"

// RotationConfig bounds a log file.
type RotationConfig struct {
	// MaxBytes triggers rotation when a write would grow the file past it.
	MaxBytes int64
	// MaxAge removes backups older than this. Zero keeps them.
	MaxAge time.Duration
	// MaxBackups keeps at most this many backups. Zero keeps all.
	MaxBackups int
	// Compress gzips each backup when it is rotated out.
	Compress bool
}

// RotatingWriter is a size-bounded log file. Backups are named
// <name>-<timestamp><ext>[.gz] next to the live file. Writes are serialized
// so parallel workflow steps can share one writer.
type RotatingWriter struct {
	mu   sync.Mutex
	path string
	cfg  RotationConfig
	file *os.File
	size int64
	now  func() time.Time
}

// OpenRotating opens path with an explicit rotation policy and prunes any
// expired backups left by earlier runs.
func OpenRotating(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := &RotatingWriter{path: path, cfg: cfg, now: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first if p would overflow a non-empty file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.cfg.MaxBytes > 0 && w.size > 0 && w.size+int64(len(p)) > w.cfg.MaxBytes {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("log rotation failed: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Rotate forces a rotation regardless of size.
func (w *RotatingWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return os.ErrClosed
	}
	return w.rotate()
}

// Close closes the live file. Further writes fail with os.ErrClosed.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	backup := w.backupName(w.now())
	if err := os.Rename(w.path, backup); err != nil {
		return err
	}
	if w.cfg.Compress {
		if err := gzipFile(backup); err != nil {
			return err
		}
	}
	if err := w.open(); err != nil {
		return err
	}
	w.prune()
	return nil
}

func (w *RotatingWriter) backupName(t time.Time) string {
	ext := filepath.Ext(w.path)
	stem := strings.TrimSuffix(w.path, ext)
	return fmt.Sprintf("%s-%s%s", stem, t.Format(backupTimeFormat), ext)
}

// Backups lists existing backups, newest first.
func (w *RotatingWriter) Backups() ([]string, error) {
	ext := filepath.Ext(w.path)
	stem := strings.TrimSuffix(w.path, ext)
	matches, err := filepath.Glob(stem + "-*" + ext + "*")
	if err != nil {
		return nil, err
	}

	prefix := filepath.Base(stem) + "-"
	var backups []string
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".gz")
		name = strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)
		if _, err := time.Parse(backupTimeFormat, name); err == nil {
			backups = append(backups, m)
		}
	}
	// The timestamp format sorts lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// prune applies MaxBackups and MaxAge. Errors are ignored; a stale backup is
// not worth failing a log write over.
func (w *RotatingWriter) prune() {
	if w.cfg.MaxBackups <= 0 && w.cfg.MaxAge <= 0 {
		return
	}
	backups, err := w.Backups()
	if err != nil {
		return
	}

	cutoff := w.now().Add(-w.cfg.MaxAge)
	for i, b := range backups {
		if w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups {
			_ = os.Remove(b)
			continue
		}
		if w.cfg.MaxAge > 0 {
			if info, err := os.Stat(b); err == nil && info.ModTime().Before(cutoff) {
				_ = os.Remove(b)
			}
		}
	}
}

// gzipFile replaces path with path.gz.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(dst)
	_, copyErr := io.Copy(zw, src)
	closeErr := zw.Close()
	fileErr := dst.Close()
	for _, err := range []error{copyErr, closeErr, fileErr} {
		if err != nil {
			_ = os.Remove(path + ".gz")
			return err
		}
	}
	return os.Remove(path)
}
