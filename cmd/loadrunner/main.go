// Command loadrunner is the CLI entry point: a cobra root command with
// run/validate subcommands. Ctrl+C is handled via signal.Notify for a
// graceful drain instead of an abrupt kill.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fibi-poc-dev/load-runner/internal/applog"
	"github.com/fibi-poc-dev/load-runner/internal/config"
	"github.com/fibi-poc-dev/load-runner/internal/monitor"
	"github.com/fibi-poc-dev/load-runner/pkg/collection"
	"github.com/fibi-poc-dev/load-runner/pkg/datasource"
	"github.com/fibi-poc-dev/load-runner/pkg/faillog"
	"github.com/fibi-poc-dev/load-runner/pkg/httpexec"
	"github.com/fibi-poc-dev/load-runner/pkg/metrics"
	"github.com/fibi-poc-dev/load-runner/pkg/model"
	"github.com/fibi-poc-dev/load-runner/pkg/report"
	"github.com/fibi-poc-dev/load-runner/pkg/scheduler"
	"github.com/fibi-poc-dev/load-runner/pkg/sequence"
	"github.com/fibi-poc-dev/load-runner/pkg/vu"
)

func main() {
	var (
		logLevel  string
		logJSON   bool
		logFile   string
		reportOut string
	)

	rootCmd := &cobra.Command{
		Use:   "loadrunner",
		Short: "Data-driven HTTP load generator",
	}

	runCmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run a load test described by a configuration document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(args[0], applog.Options{Level: logLevel, JSON: logJSON, FilePath: logFile}, reportOut)
		},
	}
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	runCmd.Flags().BoolVar(&logJSON, "log-json", false, "emit structured JSON logs instead of a console table")
	runCmd.Flags().StringVar(&logFile, "log-file", "", "optional rotated log file path")
	runCmd.Flags().StringVar(&reportOut, "report-out", "report.json", "path for the JSON report artifact")

	validateCmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Load and validate a configuration document without running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("configuration OK: %d steps, %d max VUs, %dms total\n",
				len(cfg.StepSequence), cfg.MaxVUs, cfg.TotalMs())
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, validateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runLoad(configPath string, logOpts applog.Options, reportOut string) error {
	doc, err := config.LoadDocument(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	runID := uuid.NewString()
	log := applog.New(logOpts).With().Str("run_id", runID).Logger()

	templates, err := collection.YAMLLoader{}.Load(doc.PostmanCollectionPath)
	if err != nil {
		return fmt.Errorf("loading request collection: %w", err)
	}
	rows, err := datasource.CSVLoader{}.Load(doc.CsvDataPath)
	if err != nil {
		return fmt.Errorf("loading data source: %w", err)
	}
	mapping, err := datasource.MappingLoader{}.Load(doc.ColumnMappingPath)
	if err != nil {
		return fmt.Errorf("loading column mapping: %w", err)
	}

	byName := make(map[string]model.RequestTemplate, len(templates))
	for _, t := range templates {
		byName[t.Name] = t
	}
	for _, step := range cfg.StepSequence {
		if _, ok := byName[step.StepName]; !ok {
			return fmt.Errorf("step %q has no matching request template", step.StepName)
		}
	}

	m := metrics.New()
	fl := faillog.New(nonEmptyOrNil(doc.OutputSettings.FailureLogDir))
	defer fl.Close()

	exec := httpexec.New(time.Duration(cfg.RequestTimeoutMs)*time.Millisecond, cfg.MaxVUs)
	seqMgr := sequence.New(cfg.PreludeSteps, cfg.TokenName)

	var limiter *rate.Limiter
	if cfg.TargetTPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.TargetTPS), int(cfg.TargetTPS)+1)
	}

	depsFactory := func(id int) vu.Deps {
		return vu.Deps{
			Templates:  byName,
			Steps:      cfg.StepSequence,
			Rows:       rows,
			Mapping:    mapping,
			Executor:   exec,
			Metrics:    m,
			FailLog:    fl,
			SeqManager: seqMgr,
			Log:        log,
			Limiter:    limiter,
		}
	}

	runner := scheduler.New(cfg, depsFactory, m, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Warn().Msg("interrupt received, draining virtual users")
		cancel()
	}()

	mon := monitor.New(m, doc.OutputSettings.ConsoleUpdateIntervalMs)
	monCtx, monCancel := context.WithCancel(context.Background())
	defer monCancel()

	var group errgroup.Group
	group.Go(func() error {
		mon.Run(monCtx)
		return nil
	})
	group.Go(func() error {
		runner.Run(ctx)
		monCancel()
		return nil
	})
	if err := group.Wait(); err != nil {
		return fmt.Errorf("running load test: %w", err)
	}

	_, verdict, err := report.Emit(m, cfg, report.JSONArtifactWriter{Path: reportOut, RunID: runID})
	if err != nil {
		return fmt.Errorf("emitting report: %w", err)
	}

	if !verdict.Pass {
		for _, reason := range verdict.Reasons {
			log.Error().Msg(reason)
		}
		os.Exit(1)
	}
	return nil
}

func nonEmptyOrNil(dir string) *string {
	if dir == "" {
		return nil
	}
	return &dir
}
