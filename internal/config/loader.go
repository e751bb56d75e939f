package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML or TOML config file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *AppConfig
	onChange []func(*AppConfig)
	watcher  *fsnotify.Watcher
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *AppConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*AppConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file changes.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					// A half-written or invalid file is rejected; the old config stays.
					_, _ = l.Reload()
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the config file. A config that fails
// Validate is rejected with ErrInvalid and the current one stays in place.
func (l *Loader) Reload() (*AppConfig, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, l.path, err)
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*AppConfig), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*AppConfig, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	cfg, err := Parse(data, filepath.Ext(l.path))
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", l.path, err)
	}
	return cfg, nil
}

// Parse decodes data according to ext (".toml" selects TOML, anything else YAML)
// and applies defaults.
func Parse(data []byte, ext string) (*AppConfig, error) {
	var cfg AppConfig
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *AppConfig {
	cfg := &AppConfig{Version: "v1"}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields in place.
func ApplyDefaults(cfg *AppConfig) {
	a := &cfg.API
	if a.BaseURL == "" {
		a.BaseURL = "http://localhost:8000"
	}
	if a.AuthScheme == "" {
		a.AuthScheme = "Token"
	}
	if a.LoginURL == "" {
		a.LoginURL = "/login"
	}
	setString(&a.Params.Subject, "subject")
	setString(&a.Params.Topic, "topic")
	setString(&a.Params.Group, "group")
	setString(&a.Params.Subgroup, "subgroup")
	setString(&a.Params.Grade, "grade")

	lc := &cfg.Layout
	setFloat(&lc.Width, 800)
	setFloat(&lc.Height, 600)
	setFloat(&lc.LinkBase, 30)
	setFloat(&lc.LinkStrength, 0.12)
	setFloat(&lc.TopicBonus, 60)
	setFloat(&lc.OutcomeBonus, 5)
	setFloat(&lc.Charge, -1600)
	setFloat(&lc.CenterStrength, 0.03)
	setFloat(&lc.CollideMargin, 4)
	setFloat(&lc.AlphaMin, 0.001)
	setFloat(&lc.AlphaDecay, 0.0228)
	setFloat(&lc.VelocityDecay, 0.4)
	if lc.CollideIterations == 0 {
		lc.CollideIterations = 2
	}
	if lc.FrameIntervalMs == 0 {
		lc.FrameIntervalMs = 16
	}

	vc := &cfg.Viewport
	setFloat(&vc.MinScale, 0.05)
	setFloat(&vc.MaxScale, 4)
	setFloat(&vc.FitPadding, 60)
	if vc.FitDelayMs == 0 {
		vc.FitDelayMs = 1200
	}
	if vc.FitDurationMs == 0 {
		vc.FitDurationMs = 700
	}

	sc := &cfg.Server
	if sc.Addr == "" {
		sc.Addr = ":8080"
	}
	if sc.EventQueueDepth == 0 {
		sc.EventQueueDepth = 256
	}
	if sc.EventTimeoutMs == 0 {
		sc.EventTimeoutMs = 1000
	}
}

// ResolveToken returns the configured token, falling back to the TokenEnv variable.
func (a APIConf) ResolveToken() string {
	if a.Token != "" {
		return a.Token
	}
	if a.TokenEnv != "" {
		return os.Getenv(a.TokenEnv)
	}
	return ""
}

func setString(p *string, def string) {
	if *p == "" {
		*p = def
	}
}

func setFloat(p *float64, def float64) {
	if *p == 0 {
		*p = def
	}
}
