package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/klyr/lure/internal/event"
	"github.com/klyr/lure/internal/report"
)

type reportOptions struct {
	inputPath   string
	outPath     string
	since       time.Duration
	format      string
	category    string
	top         int
	topPatterns int
}

func newReportCmd() *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report --in events.jsonl",
		Short: "Build a threat snapshot from the event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.inputPath, "in", "", "Event log to read (JSONL)")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "Write the snapshot here instead of stdout")
	cmd.Flags().DurationVar(&opts.since, "since", 0, "Only include events from this recent window (e.g. 24h)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text|md|json")
	cmd.Flags().StringVar(&opts.category, "category", "", "Only include events of this category: scan|spam|attack")
	cmd.Flags().IntVar(&opts.top, "top", 3, "Entries listed per ranking (threat IPs, paths)")
	cmd.Flags().IntVar(&opts.topPatterns, "top-patterns", 5, "Signatures listed in the pattern ranking")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func runReport(cmd *cobra.Command, opts reportOptions) error {
	if opts.top < 1 || opts.topPatterns < 1 {
		return errors.New("--top and --top-patterns must be at least 1")
	}
	if opts.since < 0 {
		return errors.New("--since must not be negative")
	}

	summaryOpts := report.Options{Top: opts.top, TopPatterns: opts.topPatterns}
	if opts.category != "" {
		category, err := event.ParseCategory(opts.category)
		if err != nil {
			return err
		}
		summaryOpts.Category = category
	}

	reader := report.Reader{}
	if opts.since > 0 {
		reader.Since = time.Now().Add(-opts.since)
	}
	entries, err := reader.Read(opts.inputPath)
	if err != nil {
		return err
	}

	rendered, err := renderSnapshot(report.Summarize(entries, summaryOpts), opts.format)
	if err != nil {
		return err
	}
	if opts.outPath == "" {
		return writeTo(cmd.OutOrStdout(), rendered)
	}
	return report.WriteOutput(opts.outPath, rendered)
}

func renderSnapshot(summary report.Summary, format string) ([]byte, error) {
	switch format {
	case "", "text":
		return []byte(report.RenderText(summary)), nil
	case "md":
		return []byte(report.RenderMarkdown(summary)), nil
	case "json":
		data, err := report.RenderJSON(summary)
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func writeTo(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}
