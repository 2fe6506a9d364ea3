package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned when a config file parses as none of the
// supported formats.
var ErrUnknownFormat = errors.New("config: unrecognised format")

// codec reads and writes one file format.
type codec struct {
	name   string
	decode func([]byte, *Config) error
	encode func(*Config) ([]byte, error)
}

var (
	tomlCodec = codec{
		name: "TOML",
		decode: func(b []byte, c *Config) error {
			_, err := toml.Decode(string(b), c)
			return err
		},
		encode: func(c *Config) ([]byte, error) {
			var buf bytes.Buffer
			err := toml.NewEncoder(&buf).Encode(c)
			return buf.Bytes(), err
		},
	}
	jsonCodec = codec{
		name:   "JSON",
		decode: func(b []byte, c *Config) error { return json.Unmarshal(b, c) },
		encode: func(c *Config) ([]byte, error) { return json.MarshalIndent(c, "", "  ") },
	}
	yamlCodec = codec{
		name:   "YAML",
		decode: func(b []byte, c *Config) error { return yaml.Unmarshal(b, c) },
		encode: func(c *Config) ([]byte, error) { return yaml.Marshal(c) },
	}
)

// codecFor picks a codec by file extension. ok is false for unknown
// extensions, which are written as TOML and sniffed on read.
func codecFor(path string) (codec, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return tomlCodec, true
	case ".json":
		return jsonCodec, true
	case ".yaml", ".yml":
		return yamlCodec, true
	}
	return tomlCodec, false
}

// readFile decodes path over the defaults. A missing file yields the
// defaults.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if c, ok := codecFor(path); ok {
		cfg := DefaultConfig()
		if err := c.decode(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.name, err)
		}
		return cfg, nil
	}

	for _, c := range []codec{tomlCodec, jsonCodec, yamlCodec} {
		cfg := DefaultConfig()
		if c.decode(data, cfg) == nil {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

func encode(cfg *Config, path string) ([]byte, error) {
	c, _ := codecFor(path)
	return c.encode(cfg)
}

// LoadOrCreate loads the configuration at path, writing the defaults there
// first if the file does not exist. The boolean reports whether the file
// was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		cfg.ApplyEnvOverrides()
		return cfg, true, nil
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// settleDelay is how long the file must be quiet before a reload. Editors
// often write a file in several steps.
const settleDelay = 100 * time.Millisecond

// Loader owns one config file and can follow edits to it.
type Loader struct {
	path string

	mu        sync.RWMutex
	current   *Config
	listeners []func(*Config)

	watcher *fsnotify.Watcher
	stop    chan struct{}
	once    sync.Once
	errs    chan error
}

// NewLoader returns a Loader for path. Nothing is read until Load.
func NewLoader(path string) *Loader {
	return &Loader{
		path: path,
		stop: make(chan struct{}),
		errs: make(chan error, 1),
	}
}

// Load reads the file, applies environment overrides and validates the
// result. On success it becomes the current configuration.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.read()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) read() (*Config, error) {
	cfg, err := readFile(l.path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Config returns the last successfully loaded configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers fn to run after every successful reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Errors reports reload failures. While a reload fails the previous
// configuration stays current. Only the latest unread error is kept.
func (l *Loader) Errors() <-chan error { return l.errs }

// Watch follows the file's directory, so files replaced by rename are
// picked up as well as in-place writes.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = w
	go l.follow(w)
	return nil
}

func (l *Loader) follow(w *fsnotify.Watcher) {
	name := filepath.Base(l.path)
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-l.stop:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(settleDelay, l.reload)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.fail(err)
		}
	}
}

func (l *Loader) reload() {
	cfg, err := l.read()
	if err != nil {
		l.fail(fmt.Errorf("reload config: %w", err))
		return
	}

	l.mu.Lock()
	l.current = cfg
	listeners := slices.Clone(l.listeners)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// fail replaces any unread error with err.
func (l *Loader) fail(err error) {
	for {
		select {
		case l.errs <- err:
			return
		default:
		}
		select {
		case <-l.errs:
		default:
		}
	}
}

// Close stops watching.
func (l *Loader) Close() error {
	l.once.Do(func() { close(l.stop) })
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
