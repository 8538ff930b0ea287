package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/dataq/ai/provider"
	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/logger"
	"github.com/teranos/dataq/quality"
	"github.com/teranos/dataq/quality/clean"
	"github.com/teranos/dataq/quality/explain"
	"github.com/teranos/dataq/quality/plan"
	"github.com/teranos/dataq/quality/profile"
	"github.com/teranos/dataq/quality/score"
	"github.com/teranos/dataq/quality/table"
)

// CheckCmd profiles a local file without touching the database
var CheckCmd = &cobra.Command{
	Use:   "check <file.csv>",
	Short: "Profile, score and optionally clean a local CSV file",
	Long: `Run the profiler and scorer on a local file and print the report.

The whole file is profiled. --explain asks the configured LLM (or the offline
heuristic) for a summary and cleaning plan. --plan loads a plan from a JSON or
YAML file instead. --out applies the plan and writes the cleaned CSV.

Examples:
  dataq check people.csv
  dataq check people.csv --format json
  dataq check people.csv --explain --out people_cleaned.csv
  dataq check people.csv --plan plan.yaml --out cleaned.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

var (
	checkExplain bool
	checkPlan    string
	checkOut     string
	checkFormat  string
)

func init() {
	CheckCmd.Flags().BoolVar(&checkExplain, "explain", false, "Ask for a summary and cleaning plan")
	CheckCmd.Flags().StringVar(&checkPlan, "plan", "", "Cleaning plan file (.json, .yaml or .yml)")
	CheckCmd.Flags().StringVar(&checkOut, "out", "", "Write the cleaned CSV here")
	CheckCmd.Flags().StringVar(&checkFormat, "format", "table", "Output format: table, json, yaml")
}

// checkOptions are the check flags
type checkOptions struct {
	Explain  bool
	PlanPath string
	OutPath  string
}

// checkReport is what check prints in json and yaml formats
type checkReport struct {
	File          string                  `json:"file" yaml:"file"`
	RowCount      int                     `json:"row_count" yaml:"row_count"`
	ColumnCount   int                     `json:"column_count" yaml:"column_count"`
	DuplicateRows int                     `json:"duplicate_rows" yaml:"duplicate_rows"`
	QualityScore  float64                 `json:"quality_score" yaml:"quality_score"`
	Penalties     score.Breakdown         `json:"penalties" yaml:"penalties"`
	Columns       []quality.ColumnProfile `json:"columns" yaml:"columns"`
	Issues        []quality.Issue         `json:"issues" yaml:"issues"`
	Summary       string                  `json:"summary,omitempty" yaml:"summary,omitempty"`
	PlanSource    string                  `json:"plan_source,omitempty" yaml:"plan_source,omitempty"`
	Plan          []plan.Raw              `json:"plan,omitempty" yaml:"plan,omitempty"`
	PlanRejection []plan.Violation        `json:"plan_rejection,omitempty" yaml:"plan_rejection,omitempty"`
	Cleaning      *checkCleaning          `json:"cleaning,omitempty" yaml:"cleaning,omitempty"`
}

type checkCleaning struct {
	Out          string         `json:"out" yaml:"out"`
	RowsBefore   int            `json:"rows_before" yaml:"rows_before"`
	RowsAfter    int            `json:"rows_after" yaml:"rows_after"`
	CleanedScore float64        `json:"cleaned_score" yaml:"cleaned_score"`
	Effects      []clean.Effect `json:"effects" yaml:"effects"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	switch checkFormat {
	case "table", "json", "yaml":
	default:
		return errors.Newf("unsupported format: %s (supported: table, json, yaml)", checkFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var spinner *pterm.SpinnerPrinter
	if checkFormat == "table" {
		spinner, _ = pterm.DefaultSpinner.Start("Profiling " + filepath.Base(args[0]) + "...")
	}
	report, err := check(cmd.Context(), cfg, args[0], checkOptions{
		Explain:  checkExplain,
		PlanPath: checkPlan,
		OutPath:  checkOut,
	})
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	return printCheckReport(cmd.OutOrStdout(), checkFormat, report)
}

// check profiles path and, depending on opts, explains it and writes a cleaned copy
func check(ctx context.Context, cfg *am.Config, path string, opts checkOptions) (*checkReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	t, err := table.Read(f, table.Options{})
	f.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	profOpts := profile.OptionsFromConfig(cfg.Profile)
	prof := profile.Profile(t, profOpts)
	breakdown := score.Compute(score.FromColumns(prof.RowCount, prof.Columns, prof.DuplicateRows, prof.Issues))

	report := &checkReport{
		File:          path,
		RowCount:      prof.RowCount,
		ColumnCount:   prof.ColumnCount,
		DuplicateRows: prof.DuplicateRows,
		QualityScore:  breakdown.Score,
		Penalties:     breakdown,
		Columns:       prof.Columns,
		Issues:        prof.Issues,
	}

	if opts.Explain {
		res, err := explainLocal(ctx, cfg, path, report)
		if err != nil {
			return nil, err
		}
		report.Summary = res.Summary
		report.PlanSource = res.Source
		report.Plan = res.Plan
	}
	if opts.PlanPath != "" {
		raws, err := loadPlanFile(opts.PlanPath)
		if err != nil {
			return nil, err
		}
		report.Plan = raws
		report.PlanSource = "file"
	}

	if len(report.Plan) == 0 {
		if opts.OutPath != "" {
			return nil, errors.WithHint(
				errors.Wrap(errors.ErrNotReady, "no cleaning plan to apply"),
				"pass --explain or --plan together with --out")
		}
		return report, nil
	}

	ops, err := plan.Validate(report.Plan, prof.Columns)
	if err != nil {
		var verr *plan.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		report.PlanRejection = verr.Violations
		if opts.OutPath != "" {
			return nil, err
		}
		return report, nil
	}
	if opts.OutPath == "" {
		return report, nil
	}

	res := clean.Apply(t, ops)
	if err := writeTable(opts.OutPath, res.Table); err != nil {
		return nil, err
	}
	cleaned := profile.Profile(res.Table, profOpts)
	report.Cleaning = &checkCleaning{
		Out:          opts.OutPath,
		RowsBefore:   res.RowsBefore,
		RowsAfter:    res.RowsAfter,
		CleanedScore: score.Score(score.FromColumns(cleaned.RowCount, cleaned.Columns, cleaned.DuplicateRows, cleaned.Issues)),
		Effects:      res.Effects,
	}
	return report, nil
}

// explainLocal asks the configured generator, falling back to the heuristic
// when the generator fails
func explainLocal(ctx context.Context, cfg *am.Config, path string, report *checkReport) (*explain.Result, error) {
	gen, err := provider.Build(cfg, nil, logger.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to configure LLM provider")
	}
	ex := explain.New(gen, explain.Options{
		MaxPromptBytes: cfg.LLM.MaxPromptBytes,
		Timeout:        cfg.LLM.Timeout(),
	}, logger.Logger)

	in := explain.Input{
		Filename:     filepath.Base(path),
		RowCount:     report.RowCount,
		ColumnCount:  report.ColumnCount,
		QualityScore: report.QualityScore,
		Columns:      report.Columns,
		Issues:       report.Issues,
	}
	res, err := ex.Explain(ctx, in)
	if err != nil {
		logger.Warnw("LLM explanation failed, using heuristic plan", logger.FieldErrorKind, errors.KindOf(err), logger.FieldError, err)
		return explain.Heuristic(in), nil
	}
	return res, nil
}

// loadPlanFile reads a plan as a list of steps. YAML is a superset of JSON,
// but .json files go through encoding/json for exact number handling.
func loadPlanFile(path string) ([]plan.Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read plan %s", path)
	}

	var raws []plan.Raw
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raws)
	default:
		err = json.Unmarshal(data, &raws)
	}
	if err != nil {
		return nil, errors.WithHint(
			errors.Mark(errors.Wrapf(err, "failed to parse plan %s", path), errors.ErrInvalidRequest),
			`a plan is a list of {"operation_type", "column", "parameters"} steps`)
	}
	return raws, nil
}

func writeTable(path string, t *table.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %s", path)
}

func printCheckReport(w io.Writer, format string, report *checkReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return errors.Wrap(err, "failed to encode report as YAML")
		}
		return enc.Close()
	}

	pterm.DefaultSection.Println(report.File)
	pterm.Info.Printfln("Rows: %d  Columns: %d  Duplicate rows: %d", report.RowCount, report.ColumnCount, report.DuplicateRows)
	scoreLine := fmt.Sprintf("Quality score: %.1f / 100", report.QualityScore)
	if report.QualityScore >= 80 {
		pterm.Success.Println(scoreLine)
	} else {
		pterm.Warning.Println(scoreLine)
	}

	columns := pterm.TableData{{"Column", "Type", "Nulls", "Distinct", "Invalid", "Outliers"}}
	for _, c := range report.Columns {
		columns = append(columns, []string{
			c.Name, string(c.Type),
			fmt.Sprint(c.NullCount), fmt.Sprint(c.DistinctCount),
			fmt.Sprint(c.InvalidCount), fmt.Sprint(c.OutlierCount),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(columns).Render(); err != nil {
		return errors.Wrap(err, "failed to render columns")
	}

	if len(report.Issues) == 0 {
		pterm.Success.Println("No issues detected")
	} else {
		issues := pterm.TableData{{"Severity", "Issue", "Column", "Detail"}}
		for _, is := range report.Issues {
			issues = append(issues, []string{is.Severity.String(), string(is.Type), is.Column, is.Message})
		}
		pterm.Println()
		if err := pterm.DefaultTable.WithHasHeader().WithData(issues).Render(); err != nil {
			return errors.Wrap(err, "failed to render issues")
		}
	}

	if report.Summary != "" {
		pterm.DefaultBox.WithTitle("Summary (" + report.PlanSource + ")").Println(report.Summary)
	}
	if len(report.Plan) > 0 {
		pterm.Info.Println("Cleaning plan:")
		for i, step := range report.Plan {
			line := fmt.Sprintf("  %d. %s", i+1, step.OperationType)
			if step.Column != "" {
				line += " on " + step.Column
			}
			if len(step.Parameters) > 0 {
				line += fmt.Sprintf(" %v", step.Parameters)
			}
			pterm.Println(line)
		}
	}
	for _, v := range report.PlanRejection {
		pterm.Warning.Println("Plan rejected: " + v.String())
	}
	if c := report.Cleaning; c != nil {
		for _, e := range c.Effects {
			if e.Warning != "" {
				pterm.Warning.Printfln("Step %d skipped: %s", e.Index+1, e.Warning)
			}
		}
		pterm.Success.Printfln("Wrote %s: %d -> %d rows, score %.1f -> %.1f",
			c.Out, c.RowsBefore, c.RowsAfter, report.QualityScore, c.CleanedScore)
	}
	return nil
}
