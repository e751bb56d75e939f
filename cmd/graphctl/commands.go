package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/filter"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/graph"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/interaction"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/layout"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/render"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/viewport"
)

func subjectsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "subjects",
		Short: "List subjects in server order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := g.client()
			if err != nil {
				return err
			}
			subjects, err := c.Subjects(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(subjects) == 0 {
				subtle.Fprintln(out, "  no subjects")
				return nil
			}
			rows := make([][]string, len(subjects))
			for i, s := range subjects {
				rows[i] = []string{s.Slug, fmt.Sprint(len(s.Defaults)), joinSlugs(s.Defaults, 3)}
			}
			table(out, []string{"SUBJECT", "DEFAULTS", "FIRST"}, rows)
			return nil
		},
	}
}

func optionsCmd(g *globals) *cobra.Command {
	var (
		sf          stateFlags
		all         bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Show topic, group and subgroup lists for a filter scope",
		Long: "Show the option lists the API returns for a scope. With --all, the topic\n" +
			"lists of every subject are fetched in parallel.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := g.client()
			if err != nil {
				return err
			}
			st, err := sf.state()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !all {
				if st.Subject == "" {
					return fmt.Errorf("--subject or --all is required")
				}
				resp, err := c.Options(cmd.Context(), filter.Scope{
					Subject: st.Subject, Topic: st.Topic, Group: st.Group, Grades: st.Grades,
				})
				if err != nil {
					return err
				}
				printOptions(out, st.Subject, resp)
				return nil
			}

			subjects, err := c.Subjects(cmd.Context())
			if err != nil {
				return err
			}
			results := make([]filter.OptionsResponse, len(subjects))
			var mu sync.Mutex
			eg, ctx := errgroup.WithContext(cmd.Context())
			eg.SetLimit(concurrency)
			for i, s := range subjects {
				eg.Go(func() error {
					resp, err := c.Options(ctx, filter.Scope{Subject: s.Slug, Grades: st.Grades})
					if err != nil {
						return fmt.Errorf("%s: %w", s.Slug, err)
					}
					mu.Lock()
					results[i] = resp
					mu.Unlock()
					return nil
				})
			}
			if err := eg.Wait(); err != nil {
				return err
			}
			for i, s := range subjects {
				printOptions(out, s.Slug, results[i])
			}
			return nil
		},
	}
	sf.bind(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "fetch topic lists for every subject")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel requests with --all")
	return cmd
}

func printOptions(w io.Writer, subject string, resp filter.OptionsResponse) {
	brand.Fprintf(w, "%s\n", subject)
	for _, l := range filter.Levels {
		list, ok := resp.Get(l)
		if !ok {
			subtle.Fprintf(w, "  %-9s (not sent)\n", l)
			continue
		}
		fmt.Fprintf(w, "  %-9s %d  %s\n", l, len(list), joinSlugs(list, 6))
	}
}

func summaryCmd(g *globals) *cobra.Command {
	var (
		sf     stateFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize the graph for a filter state: counts, best and worst nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := fetchGraph(cmd, g, &sf)
			if err != nil {
				return err
			}
			sum := graph.Summarize(snap)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			fmt.Fprintf(out, "  %s  %d\n", brand.Sprintf("%-8s", "Nodes"), sum.NodeCount)
			fmt.Fprintf(out, "  %s  %d\n", brand.Sprintf("%-8s", "Links"), sum.LinkCount)
			fmt.Fprintln(out)
			good.Fprintln(out, "  Best")
			table(out, []string{"ID", "TYPE", "SCORE", "LABEL"}, scoreRows(sum.Best))
			bad.Fprintln(out, "  Worst")
			table(out, []string{"ID", "TYPE", "SCORE", "LABEL"}, scoreRows(sum.Worst))
			return nil
		},
	}
	sf.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func scoreRows(nodes []graph.ScoredNode) [][]string {
	rows := make([][]string, len(nodes))
	for i, n := range nodes {
		rows[i] = []string{n.ID, string(n.Type), interaction.FormatScore(n.Score), n.Label}
	}
	return rows
}

func renderCmd(g *globals) *cobra.Command {
	var (
		sf       stateFlags
		output   string
		maxTicks int
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Run the force layout to rest and write the graph as SVG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			snap, err := fetchGraph(cmd, g, &sf)
			if err != nil {
				return err
			}
			if snap.NodeCount() == 0 {
				return fmt.Errorf("graph for %q is empty", sf.subject)
			}

			sim := layout.New(cfg.Layout)
			sim.SetGraph(snap)
			ticks := sim.Settle(maxTicks)
			frame := sim.Frame()

			pts := make([]viewport.Point, len(frame.Nodes))
			for i, n := range frame.Nodes {
				pts[i] = viewport.Point{X: n.X, Y: n.Y}
			}
			t, ok := viewport.FitTransform(pts, frame.Width, frame.Height, cfg.Viewport.FitPadding)
			if !ok {
				t = viewport.Identity
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			render.Frame(w, frame, render.Options{Transform: t})

			if output != "" && output != "-" {
				phase := good.Sprint(frame.Phase)
				if frame.Phase != layout.PhaseSettled {
					phase = warn.Sprint(frame.Phase)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s %s  %d nodes, %d ticks, %s\n",
					brand.Sprint("wrote"), output, len(frame.Nodes), ticks, phase)
			}
			return nil
		},
	}
	sf.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "SVG file to write (stdout when empty)")
	cmd.Flags().IntVar(&maxTicks, "ticks", 1000, "maximum simulation steps")
	return cmd
}

func fetchGraph(cmd *cobra.Command, g *globals, sf *stateFlags) (*graph.Snapshot, error) {
	_, c, err := g.client()
	if err != nil {
		return nil, err
	}
	st, err := sf.state()
	if err != nil {
		return nil, err
	}
	if st.Subject == "" {
		return nil, fmt.Errorf("--subject is required")
	}
	return c.Graph(cmd.Context(), st)
}

func joinSlugs(list []filter.OptionEntry, limit int) string {
	parts := make([]string, 0, limit+1)
	for i, e := range list {
		if i == limit {
			parts = append(parts, "…")
			break
		}
		parts = append(parts, e.Slug)
	}
	return strings.Join(parts, ", ")
}

// table prints a simple aligned table.
func table(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		subtle.Fprintln(w, "  (none)")
		return
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}

	header, sep := "  ", "  "
	for i, h := range headers {
		header += fmt.Sprintf("%-*s  ", widths[i], h)
		sep += strings.Repeat("─", widths[i]) + "  "
	}
	subtle.Fprintln(w, header)
	subtle.Fprintln(w, sep)
	for _, row := range rows {
		line := "  "
		for i, cell := range row {
			if i < len(widths) {
				line += fmt.Sprintf("%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w, line)
	}
}
