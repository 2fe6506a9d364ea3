package logging

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const megabyte = 1 << 20

// FileRotator appends to a log file and rolls it over when it would exceed
// MaxSize megabytes or when the calendar day changes. Rolled files are named
// <name>-<timestamp><ext>, optionally gzipped, and pruned by MaxBackups and
// MaxAge.
type FileRotator struct {
	path     string
	maxBytes int64
	maxAge   time.Duration
	keep     int
	compress bool
	clock    clockwork.Clock

	mu     sync.Mutex
	file   *os.File
	size   int64
	opened time.Time

	background sync.WaitGroup
}

// NewFileRotator opens cfg.FilePath for appending, creating its directory.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	return newFileRotator(cfg, clockwork.NewRealClock())
}

func newFileRotator(cfg *Config, clock clockwork.Clock) (*FileRotator, error) {
	if cfg.FilePath == "" {
		return nil, errors.New("log file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	r := &FileRotator{
		path:     cfg.FilePath,
		maxBytes: cfg.MaxSize * megabyte,
		maxAge:   time.Duration(cfg.MaxAge) * 24 * time.Hour,
		keep:     cfg.MaxBackups,
		compress: cfg.Compress,
		clock:    clock,
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file, r.size, r.opened = f, info.Size(), r.clock.Now()
	return nil
}

// Write appends p, rolling the file first if needed.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.due(len(p)) {
		if err := r.roll(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// due never rolls an empty file, so a single oversized record still lands.
func (r *FileRotator) due(n int) bool {
	if r.size == 0 {
		return false
	}
	if r.maxBytes > 0 && r.size+int64(n) > r.maxBytes {
		return true
	}
	now := r.clock.Now()
	return now.YearDay() != r.opened.YearDay() || now.Year() != r.opened.Year()
}

func (r *FileRotator) roll() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}
	r.file = nil

	ext := filepath.Ext(r.path)
	rolled := fmt.Sprintf("%s-%s%s", strings.TrimSuffix(r.path, ext), r.clock.Now().Format("20060102-150405.000"), ext)
	if err := os.Rename(r.path, rolled); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("rename log file: %w", err)
	}
	if err := r.open(); err != nil {
		return err
	}

	r.background.Add(1)
	go func() {
		defer r.background.Done()
		if r.compress {
			_ = gzipFile(rolled, r.clock.Now())
		}
		r.prune()
	}()
	return nil
}

// gzipFile replaces path with path.gz.
func gzipFile(path string, now time.Time) (err error) {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path + ".gz")
		}
	}()

	gz := gzip.NewWriter(out)
	gz.Name = filepath.Base(path)
	gz.ModTime = now
	if _, err = io.Copy(gz, in); err != nil {
		gz.Close()
		return err
	}
	if err = gz.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

type backup struct {
	path string
	mod  time.Time
}

// prune deletes the oldest backups beyond keep and any older than maxAge.
func (r *FileRotator) prune() {
	paths, err := r.backups()
	if err != nil {
		return
	}

	var all []backup
	for _, p := range paths {
		if st, err := os.Stat(p); err == nil {
			all = append(all, backup{p, st.ModTime()})
		}
	}
	slices.SortFunc(all, func(a, b backup) int { return b.mod.Compare(a.mod) })

	cutoff := r.clock.Now().Add(-r.maxAge)
	for i, b := range all {
		tooMany := r.keep > 0 && i >= r.keep
		tooOld := r.maxAge > 0 && b.mod.Before(cutoff)
		if tooMany || tooOld {
			os.Remove(b.path)
		}
	}
}

func (r *FileRotator) backups() ([]string, error) {
	ext := filepath.Ext(r.path)
	return filepath.Glob(strings.TrimSuffix(r.path, ext) + "-*" + ext + "*")
}

// Files returns the live log followed by its backups.
func (r *FileRotator) Files() ([]string, error) {
	b, err := r.backups()
	return append([]string{r.path}, b...), err
}

// Sync flushes the live file.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

// Close waits for pending compression and closes the live file.
func (r *FileRotator) Close() error {
	r.background.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
