package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbase/jobwatch/pkg/runregistry"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded reconciliation runs",
	Long: `Inspect reconciliation runs recorded with 'reconcile --record' or by the
HTTP API. Runs are stored under runs.dir, one directory per run id.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsStatusCmd = &cobra.Command{
	Use:   "status <run_id>",
	Short: "Show one run (full id or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsStatus,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatusCmd)

	runsListCmd.Flags().Bool("json", false, "Output as JSON")
	runsListCmd.Flags().Int("limit", 0, "Show at most N runs (0 = all)")
	runsStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(ExitUsage, "load configuration", err)
	}
	store, err := runStore(cfg)
	if err != nil {
		return exitError(ExitUsage, "run registry", err)
	}

	runs, err := store.List()
	if err != nil {
		return err
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	return printRunsTable(os.Stdout, runs)
}

func printRunsTable(w io.Writer, runs []runregistry.RunRecord) error {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN ID\tSTATE\tSTARTED\tDURATION\tJOBS\tSTALE\tFAULTS")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			shortRunID(r.RunID),
			r.State,
			formatOptionalTime(r.StartedAt),
			formatDuration(r.Duration()),
			totalCount(r.Counts),
			r.Counts["stale"],
			r.Counts["integrity_fault"],
		)
	}
	return tw.Flush()
}

func runRunsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(ExitUsage, "load configuration", err)
	}
	store, err := runStore(cfg)
	if err != nil {
		return exitError(ExitUsage, "run registry", err)
	}

	rec, err := store.Get(args[0])
	if err != nil {
		return classifyError("get run", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	printRunStatus(os.Stdout, rec)
	return nil
}

func printRunStatus(w io.Writer, rec *runregistry.RunRecord) {
	_, _ = fmt.Fprintf(w, "run_id=%s\n", rec.RunID)
	_, _ = fmt.Fprintf(w, "state=%s\n", rec.State)
	if rec.Constraint != "" {
		_, _ = fmt.Fprintf(w, "constraint=%s\n", rec.Constraint)
	}
	if len(rec.JobIDs) > 0 {
		_, _ = fmt.Fprintf(w, "job_ids=%s\n", strings.Join(rec.JobIDs, ","))
	}
	if rec.Host != "" {
		_, _ = fmt.Fprintf(w, "host=%s pid=%d\n", rec.Host, rec.PID)
	}
	if rec.StartedAt != nil {
		_, _ = fmt.Fprintf(w, "started_at=%s\n", rec.StartedAt.UTC().Format(time.RFC3339))
	}
	if rec.EndedAt != nil {
		_, _ = fmt.Fprintf(w, "ended_at=%s\n", rec.EndedAt.UTC().Format(time.RFC3339))
	}
	actions := make([]string, 0, len(rec.Counts))
	for action := range rec.Counts {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	for _, action := range actions {
		_, _ = fmt.Fprintf(w, "count.%s=%d\n", action, rec.Counts[action])
	}
	if rec.Error != "" {
		_, _ = fmt.Fprintf(w, "error=%s\n", rec.Error)
	}
}

func shortRunID(runID string) string {
	runID = strings.TrimSpace(runID)
	if len(runID) <= 8 {
		return runID
	}
	return runID[:8]
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func totalCount(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}
