// Package main is the CLI entry point for dabes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Misaka-0x447f/project-DaBES/internal/daemon"
	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
	"github.com/Misaka-0x447f/project-DaBES/internal/infra"
	"github.com/Misaka-0x447f/project-DaBES/internal/policy"
	"github.com/Misaka-0x447f/project-DaBES/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dabes",
	Short: "Turn-based network intrusion simulator",
	Long: `dabes simulates a network intrusion one tick at a time.
Levels describe a tree of nodes guarded by daemons, firewalls and
counter-measures. Plans script the player's moves and actions; the
engine resolves them against a processor budget, escalates threat
and raises the alarm when the player is noticed.`,
	Version:      Version,
	SilenceUsage: true,
}

var validateCmd = &cobra.Command{
	Use:   "validate <level>...",
	Short: "Check level definitions",
	Long:  `Parses each level and builds its node registry, reporting structural errors such as dangling parents or watches.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

var runCmd = &cobra.Command{
	Use:   "run <level>",
	Short: "Play a plan against a level",
	Long: `Plays a plan turn by turn and prints every tick report.
Rolls come from a seeded generator; the seed is printed so the run can be replayed.
With --journal the run is recorded in the encrypted journal.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <level>",
	Short: "Play a plan many times and summarize the outcomes",
	Long:  `Plays the same plan on independent engines with consecutive seeds and prints how the runs ended.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSimulate,
}

var levelsCmd = &cobra.Command{
	Use:   "levels [dir|glob]",
	Short: "List available levels",
	Long:  `Lists the level files in a directory (default: the data directory's levels/).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLevels,
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect recorded runs",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  runJournalList,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Replay the tick reports of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	verbose     bool
	configPath  string
	jsonOutput  bool
	planPath    string
	seed        int64
	useJournal  bool
	metricsAddr string
	runs        int
	workers     int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr at debug level")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Engine config file (default: <data dir>/engine.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Machine-readable output")

	for _, cmd := range []*cobra.Command{runCmd, simulateCmd} {
		cmd.Flags().StringVarP(&planPath, "plan", "p", "", "Plan file")
		cmd.Flags().Int64Var(&seed, "seed", 0, "Roll seed (0 picks one)")
		cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address until interrupted")
		_ = cmd.MarkFlagRequired("plan")
	}
	runCmd.Flags().BoolVar(&useJournal, "journal", false, "Record the run in the encrypted journal")
	simulateCmd.Flags().IntVarP(&runs, "runs", "n", 100, "Number of runs")
	simulateCmd.Flags().IntVarP(&workers, "workers", "w", 4, "Runs played concurrently")

	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalShowCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(levelsCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(versionCmd)
}

// session is what every command needs: where data lives, the engine config and a logger.
type session struct {
	mode   *infra.ExecModeConfig
	files  *infra.LevelFiles
	config usecase.Config
	logger *zap.Logger
}

func newSession() (*session, error) {
	mode := infra.DetectExecMode()
	if err := mode.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := configPath
	if path == "" {
		path = mode.ConfigPath
	}
	config, err := usecase.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	return &session{
		mode:   mode,
		files:  infra.NewLevelFiles(),
		config: config,
		logger: createLogger(mode),
	}, nil
}

func (s *session) close() {
	_ = s.logger.Sync()
}

func (s *session) loadLevel(path string) (*infra.Level, error) {
	level, err := infra.LoadLevel(s.files.Resolve(path))
	if err != nil {
		return nil, err
	}
	s.logger.Info("level loaded", zap.String("level", level.Name), zap.Int("nodes", len(level.Nodes)))
	return level, nil
}

// newEngine builds a fresh registry, watcher and engine for one run of level.
func (s *session) newEngine(level *infra.Level, roller domain.Roller, logger *zap.Logger) (*usecase.Engine, error) {
	policies := policy.NewPolicyStore()
	registry, err := infra.NewNodeRegistry(level.Nodes, policies, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load level %s: %w", level.Name, err)
	}

	watcher := daemon.NewWatcher(daemon.DefaultInterlockConfig(), registry, logger)
	config := s.config.WithOverrides(level.TickBudget, level.MaxTicks)
	return usecase.NewEngine(config, registry, policies, watcher, roller, logger)
}

func (s *session) openJournal() (*infra.EncryptedJournal, error) {
	key, err := infra.EnsureKey(infra.NewKeyProvider(s.mode.DataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to get journal key: %w", err)
	}
	return infra.NewEncryptedJournal(s.mode.DataDir, key)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// serveMetrics exposes reg on addr until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	var failed int
	for _, path := range args {
		level, err := s.loadLevel(path)
		if err == nil {
			_, err = s.newEngine(level, infra.NewFixedRoller(), s.logger)
		}
		if err != nil {
			failed++
			fmt.Printf("FAIL %s\n     %v\n", path, err)
			continue
		}
		fmt.Printf("OK   %s (%s, %d nodes)\n", path, level.Name, len(level.Nodes))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d levels are invalid", failed, len(args))
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	level, err := s.loadLevel(args[0])
	if err != nil {
		return err
	}
	plan, err := usecase.LoadPlan(planPath)
	if err != nil {
		return err
	}

	if seed == 0 {
		seed = infra.RandomSeed()
	}
	roller := infra.NewSeededRoller(seed)
	run := domain.RunInfo{ID: uuid.NewString(), Level: level.Name, Seed: roller.Seed(), StartedAt: time.Now()}
	logger := s.logger.With(zap.String("run", run.ID))

	engine, err := s.newEngine(level, roller, logger)
	if err != nil {
		return err
	}

	if useJournal {
		journal, err := s.openJournal()
		if err != nil {
			return err
		}
		defer journal.Close()
		if err := engine.WithJournal(journal, run); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		engine.WithMetrics(infra.NewPrometheusMetrics(reg))
		serveMetrics(ctx, metricsAddr, reg, logger)
	}

	result, err := engine.Run(ctx, plan)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if jsonOutput {
		if err := printJSON(struct {
			Run    domain.RunInfo    `json:"run"`
			Result usecase.RunResult `json:"result"`
		}{run, result}); err != nil {
			return err
		}
	} else {
		fmt.Printf("\n=== %s ===\n", level.Name)
		fmt.Printf("Run: %s\n", run.ID)
		fmt.Printf("Seed: %d\n", run.Seed)
		for _, r := range result.Reports {
			printReport(r)
		}
		printRejections(result.Rejected)
		printResult(result)
	}

	if metricsAddr != "" {
		fmt.Printf("\nServing metrics on %s, interrupt to exit.\n", metricsAddr)
		<-ctx.Done()
		return nil
	}
	return engine.Intervention(ctx)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	level, err := s.loadLevel(args[0])
	if err != nil {
		return err
	}
	plan, err := usecase.LoadPlan(planPath)
	if err != nil {
		return err
	}
	if seed == 0 {
		seed = infra.RandomSeed()
	}

	ctx, cancel := signalContext(s.logger)
	defer cancel()

	var metrics domain.MetricsRecorder
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = infra.NewPrometheusMetrics(reg)
		serveMetrics(ctx, metricsAddr, reg, s.logger)
	}

	// Per-run engines log nothing; the batch logs its own progress.
	factory := func(i int) (*usecase.Engine, error) {
		engine, err := s.newEngine(level, infra.NewSeededRoller(seed+int64(i)), zap.NewNop())
		if err != nil {
			return nil, err
		}
		if metrics != nil {
			engine.WithMetrics(metrics)
		}
		return engine, nil
	}

	results, err := usecase.RunBatch(ctx, runs, workers, factory, plan, s.logger)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	summary := usecase.Summarize(results)

	if jsonOutput {
		if err := printJSON(struct {
			Level   string               `json:"level"`
			Seed    int64                `json:"seed"`
			Summary usecase.BatchSummary `json:"summary"`
		}{level.Name, seed, summary}); err != nil {
			return err
		}
	} else {
		printSummary(level.Name, seed, summary)
	}

	if metricsAddr != "" {
		fmt.Printf("\nServing metrics on %s, interrupt to exit.\n", metricsAddr)
		<-ctx.Done()
	}
	return nil
}

func runLevels(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	dir := s.mode.LevelDir
	if len(args) > 0 {
		dir = args[0]
	}
	entries, err := s.files.Discover(dir)
	if err != nil {
		return err
	}

	if jsonOutput {
		type entry struct {
			Path  string `json:"path"`
			Name  string `json:"name,omitempty"`
			Nodes int    `json:"nodes"`
			Error string `json:"error,omitempty"`
		}
		out := make([]entry, 0, len(entries))
		for _, e := range entries {
			item := entry{Path: e.Path, Name: e.Name, Nodes: e.Nodes}
			if e.Err != nil {
				item.Error = e.Err.Error()
			}
			out = append(out, item)
		}
		return printJSON(out)
	}

	fmt.Printf("\n=== Levels in %s ===\n", dir)
	if len(entries) == 0 {
		fmt.Println("No levels found.")
	}
	for _, e := range entries {
		if e.Err != nil {
			fmt.Printf("  ! %s: %v\n", e.Path, e.Err)
			continue
		}
		fmt.Printf("  - %-20s %3d nodes  %s\n", e.Name, e.Nodes, e.Path)
	}
	fmt.Println("=====================")
	return nil
}

func runJournalList(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	journal, err := s.openJournal()
	if err != nil {
		return err
	}
	defer journal.Close()

	summaries, err := journal.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if jsonOutput {
		return printJSON(summaries)
	}

	fmt.Printf("\n=== Journal (%s) ===\n", journal.Path())
	if len(summaries) == 0 {
		fmt.Println("No runs recorded.")
	}
	for _, r := range summaries {
		reason := string(r.Reason)
		if reason == "" {
			reason = "unfinished"
		}
		fmt.Printf("  %s  %-16s seed=%-20d ticks=%-3d %s  %s\n",
			r.ID, r.Level, r.Seed, r.Ticks, reason, r.StartedAt.Format(time.RFC3339))
	}
	fmt.Println("=====================")
	return nil
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	journal, err := s.openJournal()
	if err != nil {
		return err
	}
	defer journal.Close()

	reports, err := journal.Ticks(args[0])
	if err != nil {
		return fmt.Errorf("failed to read run %s: %w", args[0], err)
	}
	if len(reports) == 0 {
		return fmt.Errorf("no ticks recorded for run %s", args[0])
	}
	if jsonOutput {
		return printJSON(reports)
	}

	fmt.Printf("\n=== Run %s ===\n", args[0])
	for _, r := range reports {
		printReport(r)
	}
	return nil
}

func createLogger(mode *infra.ExecModeConfig) *zap.Logger {
	if verbose {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		logger, err := config.Build()
		if err == nil {
			return logger
		}
	}

	config := zap.NewProductionConfig()
	config.OutputPaths = []string{mode.LogPath}
	config.ErrorOutputPaths = []string{mode.LogPath}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to a no-op logger so the CLI output stays clean
		logger = zap.NewNop()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("dabes %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
