package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"replay/crumbs/internal/domain"
	"replay/crumbs/internal/render"
	"replay/crumbs/internal/summarizer"

	"github.com/spf13/cobra"
)

var (
	summarizeFile   string
	summarizeAnchor int64
	summarizeFormat string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a JSON array of breadcrumbs without any backend",
	Long:  "Reads breadcrumbs from --file (or stdin when the file is \"-\") and prints the trail segments",
	RunE:  runSummarize,
}

func init() {
	summarizeCmd.Flags().StringVarP(&summarizeFile, "file", "f", "-", "Breadcrumbs JSON file")
	summarizeCmd.Flags().Int64Var(&summarizeAnchor, "anchor", 0, "Anchor timestamp in ms for summary row offsets")
	summarizeCmd.Flags().StringVar(&summarizeFormat, "format", "text", "Output format (text, json, html)")
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if summarizeFile != "-" {
		f, err := os.Open(summarizeFile)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", summarizeFile, err)
		}
		defer f.Close()
		in = f
	}

	var crumbs []domain.Breadcrumb
	if err := json.NewDecoder(in).Decode(&crumbs); err != nil {
		return fmt.Errorf("failed to decode breadcrumbs: %w", err)
	}

	segments := summarizer.Summarize(crumbs, nil, summarizeAnchor)
	out := cmd.OutOrStdout()

	switch summarizeFormat {
	case "text":
		_, err := fmt.Fprintln(out, strings.Join(render.Text(segments), "\n"))
		return err
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(segments)
	case "html":
		return render.HTML(out, segments, render.HTMLOptions{})
	default:
		return fmt.Errorf("unknown format: %s", summarizeFormat)
	}
}
