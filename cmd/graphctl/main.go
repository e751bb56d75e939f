// Command graphctl queries the curriculum API from the terminal: it lists
// subjects and filter options, summarizes graphs and renders settled layouts.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/config"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/curriculum"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/filter"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/session"
)

var (
	brand  = color.New(color.FgHiGreen, color.Bold)
	subtle = color.New(color.FgHiBlack)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
	warn   = color.New(color.FgYellow)
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath string
	baseURL    string
	token      string
	timeout    time.Duration
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		bad.Fprintf(os.Stderr, "graphctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "graphctl",
		Short:         "Inspect curriculum graphs from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if g.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	f := root.PersistentFlags()
	f.StringVarP(&g.configPath, "config", "c", "", "YAML or TOML config file (defaults apply when empty)")
	f.StringVar(&g.baseURL, "base-url", "", "curriculum API base URL (overrides api.base_url)")
	f.StringVar(&g.token, "token", "", "API token (overrides api.token and api.token_env)")
	f.DurationVar(&g.timeout, "timeout", 30*time.Second, "per-request timeout")
	f.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		subjectsCmd(g),
		optionsCmd(g),
		summaryCmd(g),
		renderCmd(g),
	)
	return root
}

// load resolves the config file and flag overrides.
func (g *globals) load() (*config.AppConfig, error) {
	cfg := config.Default()
	if g.configPath != "" {
		l, err := config.NewLoader(g.configPath)
		if err != nil {
			return nil, err
		}
		cfg = l.Config()
	}
	if g.baseURL != "" {
		cfg.API.BaseURL = g.baseURL
	}
	if g.token != "" {
		cfg.API.Token = g.token
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// client builds an authenticated curriculum client.
func (g *globals) client() (*config.AppConfig, *curriculum.Client, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, nil, err
	}
	gw := session.New(&http.Client{Timeout: g.timeout}, session.Config{
		Scheme:   cfg.API.AuthScheme,
		Token:    cfg.API.ResolveToken(),
		LoginURL: cfg.API.LoginURL,
	}, slog.Default().With("component", "session"))
	gw.OnUnauthorized(func(loginURL string) {
		warn.Fprintf(os.Stderr, "credential rejected; sign in again at %s\n", loginURL)
	})
	return cfg, curriculum.New(cfg.API.BaseURL, gw, cfg.API.Params), nil
}

// stateFlags binds the filter selection flags shared by several commands.
type stateFlags struct {
	subject  string
	topic    string
	group    string
	subgroup string
	grades   string
}

func (s *stateFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&s.subject, "subject", "s", "", "subject slug")
	f.StringVarP(&s.topic, "topic", "t", "", "topic slug")
	f.StringVarP(&s.group, "group", "g", "", "group slug")
	f.StringVar(&s.subgroup, "subgroup", "", "subgroup slug")
	f.StringVar(&s.grades, "grades", "", "comma separated grade list, e.g. 9,10")
}

func (s *stateFlags) state() (filter.State, error) {
	st := filter.State{
		Subject:  s.subject,
		Topic:    s.topic,
		Group:    s.group,
		Subgroup: s.subgroup,
		Grades:   []int{},
	}
	grades, err := parseGrades(s.grades)
	if err != nil {
		return filter.State{}, err
	}
	st.Grades = grades
	switch {
	case st.Topic != "" && st.Subject == "":
		return filter.State{}, fmt.Errorf("%w: --topic needs --subject", filter.ErrLevelDisabled)
	case st.Group != "" && st.Topic == "":
		return filter.State{}, fmt.Errorf("%w: --group needs --topic", filter.ErrLevelDisabled)
	case st.Subgroup != "" && st.Group == "":
		return filter.State{}, fmt.Errorf("%w: --subgroup needs --group", filter.ErrLevelDisabled)
	}
	return st, nil
}

// parseGrades turns "10,9,10" into the sorted unique list [9 10].
func parseGrades(csv string) ([]int, error) {
	out := []int{}
	if strings.TrimSpace(csv) == "" {
		return out, nil
	}
	seen := map[int]bool{}
	for _, part := range strings.Split(csv, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %q", filter.ErrInvalidGrade, part)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out, nil
}
