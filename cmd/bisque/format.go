package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// outputResult writes result to the command's stdout in the selected format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	w := cmd.OutOrStdout()
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIFileHash:
		for _, h := range v {
			fmt.Fprintf(w, "%s  %s\n", h.Hash, h.Path)
		}
	case CLIDeps:
		for _, f := range v.Files {
			fmt.Fprintln(w, f)
		}
	case []CLIPlanStep:
		formatPlanText(w, v)
	case CLIBuildSummary:
		formatBuildText(w, v)
	case []CLIRecord:
		formatRecordsText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

func formatPlanText(w io.Writer, steps []CLIPlanStep) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tHASH\tSTATUS")
	for _, s := range steps {
		status := "run"
		if s.Cached {
			status = "cached"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Kind, short(s.Hash), status)
	}
	tw.Flush()
}

func formatBuildText(w io.Writer, summary CLIBuildSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tHASH\tPATH")
	for _, t := range summary.Targets {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Target, short(t.Hash), t.Path)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nRan %d jobs, %d cache hits in %s\n", summary.JobsRun, summary.CacheHits, summary.Duration)
}

func formatRecordsText(w io.Writer, recs []CLIRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HASH\tKIND\tINPUTS\tRECORDED\tLOCATION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			short(r.Hash), r.Kind, len(r.Inputs), r.RecordedAt.Format(time.RFC3339), r.Location)
	}
	tw.Flush()
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
