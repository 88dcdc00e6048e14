package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nimendoza/B2023-R3X-07/internal/allocation"
	"github.com/nimendoza/B2023-R3X-07/internal/catalog"
	"github.com/nimendoza/B2023-R3X-07/internal/dto"
	"github.com/nimendoza/B2023-R3X-07/internal/service"
	"github.com/nimendoza/B2023-R3X-07/pkg/export"
)

type solveOptions struct {
	files       catalog.Files
	mode        string
	targets     []string
	results     int
	attempts    int
	workers     int
	seed        int64
	maxAttempts int
	timeout     time.Duration
	out         string
	format      string
}

func newSolveCmd(root *rootOptions) *cobra.Command {
	opts := &solveOptions{}
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Run the allocation against local catalog and roster files and write the reports",
		Example: `  sectioner solve --catalog catalog.yaml --students students.csv --rankings rankings.csv \
    --mode target --target Core=80 --target Elective=70 --results 3 --out reports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runSolve(ctx, cmd.OutOrStdout(), root, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.files.Catalog, "catalog", "", "catalog file (YAML or JSON)")
	flags.StringVar(&opts.files.Roster, "students", "", "roster CSV (grade_level,student,research_group,taken)")
	flags.StringVar(&opts.files.Rankings, "rankings", "", "rankings CSV (grade_level,student,course_type,rank,course)")
	flags.StringVar(&opts.mode, "mode", "", "single, target or best; target when --target is given, single otherwise")
	flags.StringArrayVar(&opts.targets, "target", nil, "minimum score per category as Type=percent, repeatable")
	flags.IntVar(&opts.results, "results", 1, "results to collect in target mode")
	flags.IntVar(&opts.attempts, "attempts", 10, "successful attempts to compare in best mode")
	flags.IntVar(&opts.workers, "workers", 0, "parallel attempts (default from ALLOCATOR_WORKERS)")
	flags.Int64Var(&opts.seed, "seed", 0, "random seed; 0 seeds from the clock")
	flags.IntVar(&opts.maxAttempts, "max-attempts", 0, "attempt bound across workers; 0 is unbounded")
	flags.DurationVar(&opts.timeout, "timeout", 0, "stop after this long; 0 waits indefinitely")
	flags.StringVar(&opts.out, "out", "reports", "output directory")
	flags.StringVar(&opts.format, "format", "csv", "report format: csv or pdf")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}

func runSolve(ctx context.Context, stdout io.Writer, root *rootOptions, opts *solveOptions) error {
	if opts.format != "csv" && opts.format != "pdf" {
		return fmt.Errorf("unsupported format %q", opts.format)
	}
	targets, err := parseTargets(opts.targets)
	if err != nil {
		return err
	}
	mode := dto.RunMode(opts.mode)
	if mode == "" {
		mode = dto.RunModeSingle
		if len(targets) > 0 {
			mode = dto.RunModeTarget
		}
	}

	cat, roster, rankings, err := opts.files.Read()
	if err != nil {
		return err
	}
	model, err := catalog.NewBuilder(validator.New()).Build(cat, roster, rankings)
	if err != nil {
		return err
	}

	allocator := root.cfg.Allocator
	workers := opts.workers
	if workers <= 0 {
		workers = allocator.Workers
	}
	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	runCfg := allocation.RunConfig{
		Workers:     workers,
		MaxAttempts: opts.maxAttempts,
		Seed:        seed,
		Logger:      root.logger,
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	root.logger.Info("solving",
		zap.String("mode", string(mode)),
		zap.Int("students", len(model.Students)),
		zap.Int("workers", workers),
		zap.Int64("seed", seed),
	)
	outcomes, err := drive(ctx, model, service.EngineOptions(allocator), runCfg, mode, targets, opts)
	if err != nil {
		if errors.Is(err, allocation.ErrAttemptsExhausted) && mode == dto.RunModeTarget {
			return fmt.Errorf("no allocation met the targets within %d attempts", opts.maxAttempts)
		}
		return err
	}

	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	fmt.Fprintf(stdout, "seed %d\n", seed)
	for i, out := range outcomes {
		result := service.ResultFromOutcome(i, out)
		report := service.BuildReport(fmt.Sprintf("Allocation result %d", i+1), result, targets)
		written, err := writeReport(opts.out, prefix(i, len(outcomes)), opts.format, report)
		if err != nil {
			return err
		}
		printResult(stdout, result, targets)
		for _, name := range written {
			fmt.Fprintf(stdout, "  wrote %s\n", name)
		}
	}
	return nil
}

func drive(ctx context.Context, model *allocation.Model, engine allocation.Options, runCfg allocation.RunConfig, mode dto.RunMode, targets map[string]float64, opts *solveOptions) ([]*allocation.Outcome, error) {
	switch mode {
	case dto.RunModeTarget:
		return allocation.RunTarget(ctx, model, engine, runCfg, allocation.TargetMode{Targets: targets, Results: opts.results})
	case dto.RunModeBest:
		out, err := allocation.RunBestOf(ctx, model, engine, runCfg, allocation.BestOfMode{Attempts: opts.attempts})
		if err != nil {
			return nil, err
		}
		return []*allocation.Outcome{out}, nil
	case dto.RunModeSingle:
		out, err := allocation.RunParallel(ctx, model, engine, runCfg)
		if err != nil {
			return nil, err
		}
		return []*allocation.Outcome{out}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

// parseTargets reads Type=percent pairs.
func parseTargets(raw []string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	targets := make(map[string]float64, len(raw))
	for _, item := range raw {
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("target %q: want Type=percent", item)
		}
		pct, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(value), "%"), 64)
		if err != nil || pct < 0 || pct > 100 {
			return nil, fmt.Errorf("target %q: percent must be between 0 and 100", item)
		}
		targets[name] = pct
	}
	return targets, nil
}

func prefix(i, n int) string {
	if n == 1 {
		return ""
	}
	return fmt.Sprintf("result-%d-", i+1)
}

func writeReport(dir, prefix, format string, report export.Report) ([]string, error) {
	var written []string
	write := func(name string, data []byte) error {
		path := filepath.Join(dir, prefix+name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	if format == "pdf" {
		data, err := export.NewPDFExporter().Render(report)
		if err != nil {
			return nil, err
		}
		return written, write("report.pdf", data)
	}
	csv := export.NewCSVExporter()
	for _, sheet := range []export.Sheet{export.SheetAssignments, export.SheetSections, export.SheetSummary} {
		data, err := csv.Render(report, sheet)
		if err != nil {
			return nil, err
		}
		if err := write(string(sheet)+".csv", data); err != nil {
			return nil, err
		}
	}
	return written, nil
}

func printResult(w io.Writer, result dto.RunResult, targets map[string]float64) {
	fmt.Fprintf(w, "result %d: %d guesses in %s, total %.2f\n",
		result.Index+1, result.Attempts, time.Duration(result.ElapsedMs)*time.Millisecond, result.Total)
	for _, sc := range result.Scores {
		line := fmt.Sprintf("  %-10s %6.2f%% (%d/%d)", sc.Type, sc.Percent, sc.Attained, sc.Total)
		if target, ok := targets[sc.Type]; ok {
			line += fmt.Sprintf("  target %.2f%%", target)
		}
		fmt.Fprintln(w, line)
	}
}
