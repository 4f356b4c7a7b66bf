// Package main runs end-to-end scenarios against a running launchmate API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		baseURL       string
		identity      string
		outputJSON    bool
		minInsights   int
		timeout       time.Duration
		globalTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "e2e [scenario]",
		Short: "Run launchmate e2e scenarios",
		Long: `Run end-to-end scenarios against a running launchmate API.

Available scenarios:
  lifecycle  - Complete the first phase and expect an advancement
  insights   - Open a new project and expect the insight minimum
  advisor    - Request a pitch and connections
  all        - Run all scenarios (default)

Examples:
  e2e                                 # Run all scenarios
  e2e insights                        # Run one scenario
  e2e --url http://staging:8080 --json
`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "all"
			if len(args) > 0 {
				name = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), globalTimeout)
			defer cancel()
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := NewClient(baseURL, identity, timeout)
			return run(ctx, cmd.OutOrStdout(), client, name, allScenarios(minInsights), outputJSON)
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "launchmate API base URL")
	cmd.Flags().StringVar(&identity, "identity", "e2e@launchmate.local", "Identity to create projects as")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
	cmd.Flags().IntVar(&minInsights, "min-insights", 3, "Expected insight minimum")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Per-request timeout")
	cmd.Flags().DurationVar(&globalTimeout, "global-timeout", 10*time.Minute, "Timeout for the whole run")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, s := range allScenarios(minInsights) {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-10s %s\n", s.Name(), s.Description())
			}
		},
	})
	return cmd
}

func run(ctx context.Context, w io.Writer, client *Client, name string, all []Scenario, outputJSON bool) error {
	toRun := all
	if name != "all" {
		toRun = nil
		for _, s := range all {
			if s.Name() == name {
				toRun = []Scenario{s}
			}
		}
		if toRun == nil {
			return fmt.Errorf("unknown scenario: %s", name)
		}
	}

	results := make([]*Result, 0, len(toRun))
	failed := 0
	for _, s := range toRun {
		if ctx.Err() != nil {
			break
		}
		r := NewResult(s.Name())
		r.Complete(s.Run(ctx, client, r))
		results = append(results, r)
		if !r.Success {
			failed++
		}
		if !outputJSON {
			printResult(w, r)
		}
	}

	if outputJSON {
		out := struct {
			Timestamp time.Time `json:"timestamp"`
			Results   []*Result `json:"results"`
			Passed    int       `json:"passed"`
			Failed    int       `json:"failed"`
		}{time.Now(), results, len(results) - failed, failed}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, strings.Repeat("─", 65))
		fmt.Fprintf(w, "  Total: %d | Passed: %d | Failed: %d\n", len(results), len(results)-failed, failed)
	}

	if failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	if len(results) < len(toRun) {
		return fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	return nil
}

func printResult(w io.Writer, r *Result) {
	status := "PASSED"
	if !r.Success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "%s  %s (%dms)\n", status, r.ScenarioName, r.Duration.Milliseconds())
	for _, st := range r.Stages {
		mark := "ok"
		if !st.Success {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "    %-4s %s\n", mark, st.Name)
		if st.Error != "" {
			fmt.Fprintf(w, "         %s\n", st.Error)
		}
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "    warn %s\n", warn)
	}
}
