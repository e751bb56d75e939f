package config

// AppConfig is the top-level config structure (YAML or TOML).
type AppConfig struct {
	Version  string       `yaml:"version" toml:"version"`
	API      APIConf      `yaml:"api" toml:"api"`
	Layout   LayoutConf   `yaml:"layout" toml:"layout"`
	Viewport ViewportConf `yaml:"viewport" toml:"viewport"`
	Server   ServerConf   `yaml:"server" toml:"server"`
}

// APIConf describes the curriculum backend and how to authenticate against it.
type APIConf struct {
	BaseURL    string     `yaml:"base_url" toml:"base_url"`
	AuthScheme string     `yaml:"auth_scheme" toml:"auth_scheme"`
	Token      string     `yaml:"token" toml:"token"`
	TokenEnv   string     `yaml:"token_env" toml:"token_env"` // env var consulted when token is empty
	LoginURL   string     `yaml:"login_url" toml:"login_url"`
	Params     ParamNames `yaml:"params" toml:"params"`
}

// ParamNames maps filter levels to query parameter names on the wire.
type ParamNames struct {
	Subject  string `yaml:"subject" toml:"subject"`
	Topic    string `yaml:"topic" toml:"topic"`
	Group    string `yaml:"group" toml:"group"`
	Subgroup string `yaml:"subgroup" toml:"subgroup"`
	Grade    string `yaml:"grade" toml:"grade"`
}

// LayoutConf holds force simulation tunables. Zero values are replaced by defaults.
type LayoutConf struct {
	Width             float64 `yaml:"width" toml:"width"`
	Height            float64 `yaml:"height" toml:"height"`
	LinkBase          float64 `yaml:"link_base" toml:"link_base"`
	LinkStrength      float64 `yaml:"link_strength" toml:"link_strength"`
	TopicBonus        float64 `yaml:"topic_bonus" toml:"topic_bonus"`
	OutcomeBonus      float64 `yaml:"outcome_bonus" toml:"outcome_bonus"`
	Charge            float64 `yaml:"charge" toml:"charge"`
	CenterStrength    float64 `yaml:"center_strength" toml:"center_strength"`
	CollideMargin     float64 `yaml:"collide_margin" toml:"collide_margin"`
	CollideIterations int     `yaml:"collide_iterations" toml:"collide_iterations"`
	AlphaMin          float64 `yaml:"alpha_min" toml:"alpha_min"`
	AlphaDecay        float64 `yaml:"alpha_decay" toml:"alpha_decay"`
	VelocityDecay     float64 `yaml:"velocity_decay" toml:"velocity_decay"`
	FrameIntervalMs   int     `yaml:"frame_interval_ms" toml:"frame_interval_ms"`
}

// ViewportConf controls pan/zoom limits and auto-fit behaviour.
type ViewportConf struct {
	MinScale      float64 `yaml:"min_scale" toml:"min_scale"`
	MaxScale      float64 `yaml:"max_scale" toml:"max_scale"`
	FitPadding    float64 `yaml:"fit_padding" toml:"fit_padding"`
	FitDelayMs    int     `yaml:"fit_delay_ms" toml:"fit_delay_ms"`
	FitDurationMs int     `yaml:"fit_duration_ms" toml:"fit_duration_ms"`
}

// ServerConf holds HTTP listener settings for cmd/server.
type ServerConf struct {
	Addr            string `yaml:"addr" toml:"addr"`
	EventQueueDepth int    `yaml:"event_queue_depth" toml:"event_queue_depth"` // pending pointer events
	EventTimeoutMs  int    `yaml:"event_timeout_ms" toml:"event_timeout_ms"`
}
