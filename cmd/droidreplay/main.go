package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/leonbett/droidmate/pkg/config"
	"github.com/leonbett/droidmate/pkg/debugger"
	"github.com/leonbett/droidmate/pkg/diag"
	"github.com/leonbett/droidmate/pkg/diagram"
	"github.com/leonbett/droidmate/pkg/model"
	"github.com/leonbett/droidmate/pkg/report"
	"github.com/leonbett/droidmate/pkg/session"
	"github.com/leonbett/droidmate/pkg/viewer"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "droidreplay",
	Short:         "Replay recorded Android GUI exploration traces",
	Long:          "droidreplay re-executes recorded exploration traces against a live app, tolerating moved widgets, crashes and drifted screens.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [model.yaml]",
	Short: "Validate a recorded or live model file",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	doc, errs := model.ValidateFile(args[0])

	var failures int
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(errOut, "  ⚠ [%s] %s\n", e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(errOut, "    at: %s\n", e.Path)
			}
			continue
		}
		failures++
	}
	if failures > 0 {
		fmt.Fprintf(errOut, "Validation failed: %d error(s)\n\n", failures)
		i := 0
		for _, e := range errs {
			if e.Severity == "warning" {
				continue
			}
			i++
			fmt.Fprintf(errOut, "  %d. [%s] %s\n", i, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(errOut, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", failures)
	}

	actions := 0
	for _, app := range doc.Apps {
		actions += len(app.Actions)
	}
	fmt.Fprintf(out, "✓ %s is valid (%d apps, %d recorded actions)\n", args[0], len(doc.Apps), actions)
	return nil
}

// --- replay ---

// sessionFlags are shared by commands that build a replay session.
type sessionFlags struct {
	recorded       string
	live           string
	pkg            string
	configPath     string
	trace          string
	backSimilarity float64
	maxRecoveries  int
	maxSteps       int
	retries        int
	actionTimeout  time.Duration
}

func (f *sessionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.recorded, "recorded", "", "Path to the recorded model (required)")
	cmd.Flags().StringVar(&f.live, "live", "", "Path to the live app model (required)")
	cmd.Flags().StringVar(&f.pkg, "package", "", "App package (default: the only app of the recorded model)")
	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to droidreplay.yaml (default: discovered from the working directory)")
	cmd.Flags().StringVar(&f.trace, "trace", "", "Append diagnostic events to this JSONL file")
	cmd.Flags().Float64Var(&f.backSimilarity, "back-similarity", 0, "Similarity above which a recorded back is skipped")
	cmd.Flags().IntVar(&f.maxRecoveries, "max-recoveries", 0, "Crash recoveries allowed per trace")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "Stop after this many steps")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "Device action retries")
	cmd.Flags().DurationVar(&f.actionTimeout, "action-timeout", 0, "Per-attempt device action timeout (e.g. 5s)")
	_ = cmd.MarkFlagRequired("recorded")
	_ = cmd.MarkFlagRequired("live")
}

// resolveConfig layers flags over the file and environment configuration.
func (f *sessionFlags) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("trace") {
		cfg.Run.Trace = f.trace
	}
	if flags.Changed("back-similarity") {
		cfg.Playback.BackSimilarity = f.backSimilarity
	}
	if flags.Changed("max-recoveries") {
		cfg.Playback.MaxRecoveries = f.maxRecoveries
	}
	if flags.Changed("max-steps") {
		cfg.Run.MaxSteps = f.maxSteps
	}
	if flags.Changed("retries") {
		cfg.Run.ActionRetries = f.retries
	}
	if flags.Changed("action-timeout") {
		cfg.Run.ActionTimeout = f.actionTimeout
	}
	return cfg, nil
}

func (f *sessionFlags) open(cmd *cobra.Command) (*session.Session, error) {
	cfg, err := f.resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	return session.Open(session.Params{
		RecordedPath: f.recorded,
		LivePath:     f.live,
		Package:      f.pkg,
		Config:       cfg,
	})
}

var (
	replayFlags  sessionFlags
	replayFormat string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded traces against a live app model",
	Args:  cobra.NoArgs,
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	switch replayFormat {
	case "text", "markdown", "json":
	default:
		return fmt.Errorf("unknown format %q (want text, markdown or json)", replayFormat)
	}

	s, err := replayFlags.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, runErr := s.Run(ctx)
	summary := report.Build(s.Package, res)
	if err := writeSummary(cmd, summary, replayFormat); err != nil {
		return err
	}
	return runErr
}

func writeSummary(cmd *cobra.Command, s *report.Summary, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		data, err := s.JSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "markdown":
		_, err := fmt.Fprintln(out, s.Render(100))
		return err
	default:
		return s.Text(out)
	}
}

// --- debug ---

var debugFlags sessionFlags

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Step through a replay interactively",
	Args:  cobra.NoArgs,
	RunE:  runDebug,
}

func runDebug(cmd *cobra.Command, args []string) error {
	s, err := debugFlags.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	d := debugger.New(s.Package, s.Engine, s.Runner)
	d.SetOutput(cmd.OutOrStdout())
	return d.Run(context.Background())
}

// --- view ---

var (
	viewRecorded string
	viewPackage  string
	viewTrace    string
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Browse recorded traces with replay progress from a diagnostics file",
	Args:  cobra.NoArgs,
	RunE:  runView,
}

func runView(cmd *cobra.Command, args []string) error {
	pkg, traces, err := loadTraces(viewRecorded, viewPackage)
	if err != nil {
		return err
	}
	var source viewer.Source
	if viewTrace != "" {
		path := viewTrace
		source = func() ([]diag.Event, error) {
			events, err := diag.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				// The replay may not have started writing yet.
				return nil, nil
			}
			return events, err
		}
	}
	return viewer.Run(viewer.NewModel(pkg, traces, source))
}

func loadTraces(path, want string) (string, []model.Trace, error) {
	store, err := model.OpenStore(path)
	if err != nil {
		return "", nil, err
	}
	pkg, err := session.ResolvePackage(store, want)
	if err != nil {
		return "", nil, err
	}
	traces, err := store.TracesForPackage(pkg)
	return pkg, traces, err
}

// --- diagram ---

var (
	diagramPackage string
	diagramFormat  string
	diagramOut     string
)

var diagramCmd = &cobra.Command{
	Use:   "diagram [recorded.yaml]",
	Short: "Draw the recorded traces as a Mermaid flowchart or ASCII boxes",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagram,
}

func runDiagram(cmd *cobra.Command, args []string) error {
	pkg, traces, err := loadTraces(args[0], diagramPackage)
	if err != nil {
		return err
	}
	out, err := diagram.Generate(pkg, traces, diagram.Format(diagramFormat))
	if err != nil {
		return err
	}
	if diagramOut != "" {
		if err := os.WriteFile(diagramOut, []byte(out), 0o644); err != nil {
			return fmt.Errorf("write diagram: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Diagram written to %s\n", diagramOut)
		return nil
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

// --- schema ---

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the model JSON Schema",
	Args:  cobra.NoArgs,
	RunE:  runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	data, err := model.GenerateJSONSchema()
	if err != nil {
		return err
	}
	if schemaOut == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	if err := os.WriteFile(schemaOut, data, 0o644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Schema written to %s\n", schemaOut)
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "droidreplay %s (%s)\n", version, commit)
	},
}

func init() {
	replayFlags.bind(replayCmd)
	replayCmd.Flags().StringVar(&replayFormat, "format", "text", "Summary format: text, markdown or json")

	debugFlags.bind(debugCmd)

	viewCmd.Flags().StringVar(&viewRecorded, "recorded", "", "Path to the recorded model (required)")
	viewCmd.Flags().StringVar(&viewPackage, "package", "", "App package (default: the only app of the recorded model)")
	viewCmd.Flags().StringVar(&viewTrace, "trace", "", "Diagnostics JSONL written by replay --trace")
	_ = viewCmd.MarkFlagRequired("recorded")

	diagramCmd.Flags().StringVar(&diagramPackage, "package", "", "App package (default: the only app of the model)")
	diagramCmd.Flags().StringVar(&diagramFormat, "format", "mermaid", "Diagram format: mermaid or ascii")
	diagramCmd.Flags().StringVar(&diagramOut, "out", "", "Write the diagram to this file instead of stdout")

	schemaExportCmd.Flags().StringVar(&schemaOut, "out", "", "Write the schema to this file instead of stdout")
	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(diagramCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}
