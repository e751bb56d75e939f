package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalid marks a config file that parsed but failed validation.
var ErrInvalid = errors.New("config: invalid")

// Validate checks the config for:
//   - a parseable absolute API base URL
//   - distinct, non-empty wire parameter names
//   - positive canvas size and a sane scale range
//   - simulation constants inside their meaningful ranges
func Validate(cfg *AppConfig) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api.base_url %q must be an absolute URL", cfg.API.BaseURL))
	}

	seen := make(map[string]string)
	p := cfg.API.Params
	for _, kv := range [][2]string{
		{"subject", p.Subject}, {"topic", p.Topic}, {"group", p.Group},
		{"subgroup", p.Subgroup}, {"grade", p.Grade},
	} {
		field, name := kv[0], kv[1]
		if name == "" {
			errs = append(errs, fmt.Sprintf("api.params.%s must not be empty", field))
			continue
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Sprintf("api.params: %q used for both %s and %s", name, prev, field))
			continue
		}
		seen[name] = field
	}

	l := cfg.Layout
	if l.Width <= 0 || l.Height <= 0 {
		errs = append(errs, fmt.Sprintf("layout: width and height must be positive (got %gx%g)", l.Width, l.Height))
	}
	if l.LinkStrength < 0 || l.LinkStrength > 1 {
		errs = append(errs, fmt.Sprintf("layout.link_strength %g must be within [0, 1]", l.LinkStrength))
	}
	if l.AlphaMin <= 0 || l.AlphaMin >= 1 {
		errs = append(errs, fmt.Sprintf("layout.alpha_min %g must be within (0, 1)", l.AlphaMin))
	}
	if l.AlphaDecay <= 0 || l.AlphaDecay >= 1 {
		errs = append(errs, fmt.Sprintf("layout.alpha_decay %g must be within (0, 1)", l.AlphaDecay))
	}
	if l.VelocityDecay <= 0 || l.VelocityDecay >= 1 {
		errs = append(errs, fmt.Sprintf("layout.velocity_decay %g must be within (0, 1)", l.VelocityDecay))
	}
	if l.CollideIterations < 1 {
		errs = append(errs, "layout.collide_iterations must be at least 1")
	}
	if l.FrameIntervalMs < 1 {
		errs = append(errs, "layout.frame_interval_ms must be at least 1")
	}

	v := cfg.Viewport
	if v.MinScale <= 0 || v.MaxScale < v.MinScale {
		errs = append(errs, fmt.Sprintf("viewport: invalid scale range [%g, %g]", v.MinScale, v.MaxScale))
	}
	if v.FitPadding < 0 {
		errs = append(errs, "viewport.fit_padding must not be negative")
	}

	if cfg.Server.EventQueueDepth < 1 {
		errs = append(errs, "server.event_queue_depth must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
