package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/klyr/lure/internal/payload"
	"github.com/klyr/lure/internal/scanner"
	"github.com/klyr/lure/internal/signature"
)

type scanOptions struct {
	configPath  string
	first       bool
	decodeDepth int
	format      string
}

func newScanCmd() *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan [file|-]",
		Short: "Scan a JSON object of fields and print signature hits",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				in = file
			}
			return runScan(cmd, in, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file providing extra signatures and scanner limits")
	cmd.Flags().BoolVar(&opts.first, "first", false, "Stop at the first hit per value")
	cmd.Flags().IntVar(&opts.decodeDepth, "decode-depth", 0, "Also scan URL/HTML-decoded values up to this depth")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text|json")

	return cmd
}

func runScan(cmd *cobra.Command, in io.Reader, opts scanOptions) error {
	body, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	fields, err := payload.ParseJSON(body)
	if err != nil {
		return fmt.Errorf("parse input: %w", err)
	}

	scanOpts := scanner.Options{DecodeDepth: opts.decodeDepth}
	if opts.first {
		scanOpts.Mode = scanner.ModeFirst
	}
	catalog := signature.Builtin()
	if opts.configPath != "" {
		cfg, compiled, err := loadConfig(opts.configPath)
		if err != nil {
			return err
		}
		catalog = compiled
		scanOpts.PatternTimeout = cfg.Scanner.PatternTimeout
		scanOpts.MaxValueBytes = cfg.Scanner.MaxValueBytes
		if opts.decodeDepth == 0 {
			scanOpts.DecodeDepth = cfg.Scanner.DecodeDepth
		}
	}

	sc := scanner.New(catalog, scanOpts)
	hits := sc.Scan(cmd.Context(), fields)
	if hits == nil {
		hits = []scanner.Hit{}
	}

	out := cmd.OutOrStdout()
	switch opts.format {
	case "", "text":
		if len(hits) == 0 {
			_, err := fmt.Fprintln(out, "no findings")
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FIELD\tSIGNATURE\tCATEGORY\tMATCH")
		for _, h := range hits {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%q\n", h.Field, h.Signature, h.Category, h.Match)
		}
		return tw.Flush()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Mode string        `json:"mode"`
			Hits []scanner.Hit `json:"hits"`
		}{Mode: sc.Mode().String(), Hits: hits})
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
}
