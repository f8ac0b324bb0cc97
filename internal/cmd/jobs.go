package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kbase/jobwatch/internal/observability"
	"github.com/kbase/jobwatch/pkg/condor"
	"github.com/kbase/jobwatch/pkg/jobstore"
	"github.com/kbase/jobwatch/pkg/output"
	"github.com/kbase/jobwatch/pkg/reconcile"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect scheduler jobs and tracking documents",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active scheduler jobs with their classification",
	Long: `List the jobs the schedd reports, one per batch name, with the status name,
outcome and whether the job may still complete.

Examples:
  jobwatch jobs list
  jobwatch jobs list --status 5
  jobwatch jobs list --batch-name 5d1e2f3a4b5c6d7e8f901234 --json`,
	Args: cobra.NoArgs,
	RunE: runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job_id>...",
	Short: "Show tracking documents",
	Long: `Show the tracking documents for one or more job ids.

Examples:
  jobwatch jobs get 5d1e2f3a4b5c6d7e8f901234
  jobwatch jobs get a b c --fields status,complete --format yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runJobsGet,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)

	jobsListCmd.Flags().String("constraint", "", "Raw scheduler constraint (overrides --status and --batch-name)")
	jobsListCmd.Flags().IntSlice("status", nil, "Restrict to these JobStatus codes")
	jobsListCmd.Flags().String("batch-name", "", "Restrict to one batch name")
	jobsListCmd.Flags().Bool("json", false, "Output JSONL records")

	jobsGetCmd.Flags().StringSlice("fields", nil, "Document fields to return (default: all)")
	jobsGetCmd.Flags().String("format", "json", "Output format: json or yaml")
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	jsonOutput, _ := cmd.Flags().GetBool("json")
	rawConstraint, _ := cmd.Flags().GetString("constraint")
	statuses, _ := cmd.Flags().GetIntSlice("status")
	batchName, _ := cmd.Flags().GetString("batch-name")

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(ExitUsage, "load configuration", err)
	}
	if err := requireNotRoot(); err != nil {
		return err
	}
	classifier, err := newClassifier(cfg)
	if err != nil {
		return err
	}

	constraint := listConstraint(rawConstraint, statuses, batchName)
	constraint = defaultConstraint(cfg, constraint)

	jobs, err := reconcile.ActiveJobs(ctx, newQuerier(cfg, observability.CLILogger), classifier, constraint)
	if err != nil {
		return classifyError("query scheduler", err)
	}
	observability.CLILogger.Debug("Fetched active jobs",
		zap.String("constraint", constraint),
		zap.Int("jobs", len(jobs)))

	if jsonOutput {
		return writeJobsJSONL(ctx, os.Stdout, jobs)
	}
	return printJobsTable(os.Stdout, jobs)
}

func listConstraint(raw string, statuses []int, batchName string) string {
	if raw != "" {
		return raw
	}
	var parts []string
	if len(statuses) > 0 {
		codes := make([]condor.JobStatus, 0, len(statuses))
		for _, s := range statuses {
			codes = append(codes, condor.JobStatus(s))
		}
		parts = append(parts, condor.StatusConstraint(codes...))
	}
	if batchName != "" {
		parts = append(parts, condor.BatchNameConstraint(batchName))
	}
	return condor.And(parts...)
}

func writeJobsJSONL(ctx context.Context, w io.Writer, jobs []*output.JobRecord) error {
	writer := output.NewJSONLWriter(w, uuid.NewString(), "condor")
	defer func() { _ = writer.Close() }()
	for _, job := range jobs {
		if err := writer.WriteJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func printJobsTable(w io.Writer, jobs []*output.JobRecord) error {
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(w, "No jobs found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "BATCH NAME\tCLUSTER\tSTATUS\tOUTCOME\tWILL COMPLETE\tHOST\tHOLD REASON")
	for _, j := range jobs {
		outcome := j.Outcome
		willComplete := "-"
		if j.WillComplete != nil {
			willComplete = strconv.FormatBool(*j.WillComplete)
		}
		if j.Error != "" {
			outcome = "error"
			willComplete = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			j.BatchName,
			dashIfEmpty(formatCluster(j.ClusterID)),
			j.StatusName,
			outcome,
			willComplete,
			dashIfEmpty(j.RemoteHost),
			dashIfEmpty(truncate(derefString(j.HoldReason), 60)),
		)
	}
	return tw.Flush()
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	fields, _ := cmd.Flags().GetStringSlice("fields")
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "json" && format != "yaml" {
		return exitError(ExitUsage, "invalid --format", fmt.Errorf("unsupported format %q (want json or yaml)", format))
	}

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(ExitUsage, "load configuration", err)
	}
	store, err := openStore(ctx, cfg, observability.CLILogger)
	if err != nil {
		return classifyError("open job store", err)
	}
	defer func() { _ = store.Close(ctx) }()

	var result any
	if len(args) == 1 {
		doc, err := store.GetJob(ctx, args[0], fields)
		if err != nil {
			return classifyError("get job "+args[0], err)
		}
		result = doc
	} else {
		docs, err := store.GetJobs(ctx, args, fields)
		if err != nil {
			return classifyError("get jobs", err)
		}
		result = orderedDocuments(args, docs)
	}
	return writeFormatted(os.Stdout, format, result)
}

// orderedDocuments returns documents in request order, skipping misses.
func orderedDocuments(ids []string, docs map[string]jobstore.Document) []jobstore.Document {
	seen := make(map[string]bool, len(ids))
	out := make([]jobstore.Document, 0, len(docs))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if doc, ok := docs[id]; ok {
			out = append(out, doc)
		}
	}
	if len(out) < len(docs) {
		// The store trims ids, so some keys may not match the raw arguments.
		var extra []string
		for id := range docs {
			if !seen[id] {
				extra = append(extra, id)
			}
		}
		sort.Strings(extra)
		for _, id := range extra {
			out = append(out, docs[id])
		}
	}
	return out
}

func writeFormatted(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func formatCluster(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
