package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/odyssey-erp/stockd/internal/importer"
	"github.com/odyssey-erp/stockd/internal/shared"
)

// Exit codes returned by the commands.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitUsage     = 2
	ExitRowErrors = 3
)

// Runner reconciles parsed rows of one kind.
type Runner interface {
	Run(ctx context.Context, kind importer.Kind, rows [][]string) (importer.Report, error)
}

// JobReader loads stored import jobs.
type JobReader interface {
	Job(ctx context.Context, id string) (importer.Job, error)
}

// ImportCLI runs imports from local files and inspects queued jobs.
type ImportCLI struct {
	runner Runner
	jobs   JobReader
}

// NewImportCLI constructs the helper.
func NewImportCLI(runner Runner, jobs JobReader) (*ImportCLI, error) {
	if runner == nil {
		return nil, errors.New("import cli: runner required")
	}
	return &ImportCLI{runner: runner, jobs: jobs}, nil
}

// ImportOptions configures one synchronous import.
type ImportOptions struct {
	Kind string
	Path string
	// Source overrides opening Path; the format still follows Path's extension.
	Source     io.Reader
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ImportCommand parses the file and reconciles it inline. Rows that fail
// parsing or validation produce ExitRowErrors after the report is printed.
func (c *ImportCLI) ImportCommand(ctx context.Context, opts ImportOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)

	kind, err := importer.ParseKind(opts.Kind)
	if err != nil {
		fmt.Fprintf(stderr, "import: %v\n", err)
		return ExitUsage
	}
	format, err := importer.FormatFromName(opts.Path)
	if err != nil {
		fmt.Fprintf(stderr, "import: %s: %v\n", filepath.Base(opts.Path), err)
		return ExitUsage
	}

	src := opts.Source
	if src == nil {
		f, err := os.Open(opts.Path)
		if err != nil {
			fmt.Fprintf(stderr, "import: %v\n", err)
			return ExitFailure
		}
		defer f.Close()
		src = f
	}

	rows, err := importer.ReadRows(src, format)
	if err != nil {
		fmt.Fprintf(stderr, "import: read %s: %v\n", filepath.Base(opts.Path), err)
		return ExitFailure
	}
	report, err := c.runner.Run(ctx, kind, rows)
	if err != nil {
		fmt.Fprintf(stderr, "import: %v\n", err)
		return ExitFailure
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(report); err != nil {
			fmt.Fprintf(stderr, "import: encode report: %v\n", err)
			return ExitFailure
		}
	} else {
		printReport(stdout, report)
	}
	if len(report.RowErrors) > 0 || len(report.BatchErrors) > 0 {
		return ExitRowErrors
	}
	return ExitOK
}

// StatusOptions selects the job to describe.
type StatusOptions struct {
	JobID      string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// StatusCommand prints a stored job. A failed job exits with ExitFailure.
func (c *ImportCLI) StatusCommand(ctx context.Context, opts StatusOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	if c.jobs == nil {
		fmt.Fprintln(stderr, "status: job store not configured")
		return ExitFailure
	}
	if opts.JobID == "" {
		fmt.Fprintln(stderr, "status: job id required")
		return ExitUsage
	}
	job, err := c.jobs.Job(ctx, opts.JobID)
	if errors.Is(err, shared.ErrNotFound) {
		fmt.Fprintf(stderr, "status: job %s not found\n", opts.JobID)
		return ExitFailure
	}
	if err != nil {
		fmt.Fprintf(stderr, "status: %v\n", err)
		return ExitFailure
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(job); err != nil {
			fmt.Fprintf(stderr, "status: encode job: %v\n", err)
			return ExitFailure
		}
	} else {
		fmt.Fprintf(stdout, "job %s (%s, %s): %s\n", job.ID, job.Kind, job.FileName, job.Stage)
		if job.Error != "" {
			fmt.Fprintf(stdout, "error: %s\n", job.Error)
		}
		if job.Report != nil {
			printReport(stdout, *job.Report)
		}
	}
	if job.Stage == importer.StageFailed {
		return ExitFailure
	}
	return ExitOK
}

func printReport(w io.Writer, report importer.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "kind\t%s\n", report.Kind)
	fmt.Fprintf(tw, "rows\t%d\n", report.Rows)
	switch report.Kind {
	case importer.KindProducts:
		fmt.Fprintf(tw, "created\t%d\n", report.Created)
		fmt.Fprintf(tw, "updated\t%d\n", report.Updated)
		fmt.Fprintf(tw, "unchanged\t%d\n", report.Unchanged)
	case importer.KindStocks:
		fmt.Fprintf(tw, "inserted\t%d\n", report.Inserted)
		fmt.Fprintf(tw, "skipped\t%d\n", report.Skipped)
	}
	_ = tw.Flush()
	for _, re := range report.RowErrors {
		fmt.Fprintf(w, "row %d: %s\n", re.Row, re.Message)
	}
	for _, be := range report.BatchErrors {
		fmt.Fprintf(w, "batch %d (offset %d, %d rows): %s\n", be.Batch, be.Offset, be.Size, be.Message)
	}
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
