package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fagan2888/dyPolyChord/internal/config"
	"github.com/fagan2888/dyPolyChord/internal/dynamic"
	"github.com/fagan2888/dyPolyChord/internal/engine"
	"github.com/fagan2888/dyPolyChord/internal/process"
	"github.com/fagan2888/dyPolyChord/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dypolychord",
	Short: "dyPolyChord - dynamic nested sampling driver",
	Long: `dyPolyChord drives a compiled PolyChord-style nested sampling engine
with a dynamically allocated live-point schedule.

A dynamic run has three phases: a low-resolution exploratory run that
checkpoints as it goes, a schedule calculation that targets live points
where the posterior mass (or evidence uncertainty) peaks, and a second
engine run under that schedule, usually resumed from a checkpoint just
before the peak. The two phases are then merged into one statistically
valid run.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// initCmd writes a default configuration file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Writes the default configuration to the --config path (default
dypolychord.yaml) as a starting point. Existing files are not overwritten.`,
	RunE: runInit,
}

// runCmd performs a standard (fixed live count) run
var runCmd = &cobra.Command{
	Use:   "run [name]",
	Short: "Run the engine once with a fixed number of live points",
	Long: `Runs the compiled engine once with the configured constant live-point
count and loads the resulting samples. The optional name is folded into
the output file root alongside the settings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStandard,
}

// dynamicCmd performs full dynamic runs
var dynamicCmd = &cobra.Command{
	Use:   "dynamic [name]",
	Short: "Run the full dynamic allocation pipeline",
	Long: `Performs complete dynamic runs: exploration, schedule calculation,
the scheduled run (resumed from a checkpoint unless the goal is 0), the
merge of the two phases, and registration of the result.

With --repeats the whole pipeline is repeated with per-repetition file
roots, which is how batches for uncertainty estimates are produced.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDynamic,
}

// processCmd re-merges a registered run's output files
var processCmd = &cobra.Command{
	Use:   "process [run-id]",
	Short: "Re-merge a registered run from its output files",
	Long: `Loads a run's two phases from the chain files recorded in the
registry, merges them again, and updates the registry's summary columns.
Useful after the first merge was interrupted or the files were moved back
into place.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

// runsCmd lists registered runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List registered runs",
	RunE:  listRuns,
}

var (
	dynRepeats  int
	dynParallel int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "dypolychord.yaml", "Configuration file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Overall timeout (0: use engine timeout from config)")

	dynamicCmd.Flags().IntVar(&dynRepeats, "repeats", 0, "Number of repeated runs (0: use config)")
	dynamicCmd.Flags().IntVar(&dynParallel, "parallel", 0, "Concurrent runs (0: use config)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dynamicCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runContext builds the command context with timeout and signal handling.
func runContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	d := timeout
	if d == 0 {
		d = cfg.GetEngineTimeout()
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func newPipeline(cfg *config.Config) *dynamic.Pipeline {
	eng := &engine.Compiled{
		ExecPath: cfg.Engine.ExecPath,
		PriorBlock: engine.PriorBlock(engine.PriorSpec{
			Name:   cfg.Engine.Prior.Name,
			Params: cfg.Engine.Prior.Params,
			NParam: cfg.Engine.Prior.NParam,
		}),
		DerivedStr: cfg.Engine.DerivedStr,
	}
	return &dynamic.Pipeline{Engine: eng, Loader: engine.FileLoader{}, Logger: logger}
}

// fileRoot resolves the output file root: an explicit configuration value
// wins, otherwise the settings are encoded into the name.
func fileRoot(cfg *config.Config, name string, dyn bool) string {
	if cfg.Output.FileRoot != "" {
		return cfg.Output.FileRoot
	}
	if name == "" {
		name = "run"
	}
	return cfg.SettingsRoot(name, cfg.Engine.Prior.NParam, dyn)
}

func baseSettings(cfg *config.Config, root string) engine.Settings {
	return engine.Settings{
		BaseDir:  cfg.Output.BaseDir,
		FileRoot: root,
		NLive:    cfg.Sampling.NLive,
		MaxNDead: cfg.Sampling.MaxNDead,
		NRepeats: cfg.Sampling.NRepeats,
		Seed:     cfg.Sampling.Seed,
	}
}

func dynamicConfig(cfg *config.Config) dynamic.Config {
	return dynamic.Config{
		Goal:              cfg.Dynamic.Goal,
		NInit:             cfg.Dynamic.NInit,
		InitStep:          cfg.Dynamic.InitStep,
		Stride:            cfg.Dynamic.Stride,
		NLiveConst:        cfg.Sampling.NLive,
		MaxNDead:          cfg.Sampling.MaxNDead,
		MaxInitIterations: cfg.Dynamic.MaxInitIterations,
	}
}

// runInit writes the default configuration
func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Configuration already exists at %s\n", configPath)
		return nil
	}
	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", configPath)
	return nil
}

// runStandard performs a single fixed live count run
func runStandard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := runContext(cfg)
	defer cancel()

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	root := fileRoot(cfg, name, false)
	logger.Info("Starting standard run", zap.String("file_root", root))

	run, err := newPipeline(cfg).RunStandard(ctx, baseSettings(cfg, root))
	if err != nil {
		return err
	}

	logz, err := run.LogZ()
	if err != nil {
		return err
	}
	fmt.Printf("Run complete: %d samples, %d threads, logZ = %.4f\n",
		run.Len(), run.NumThreads(), logz)
	return nil
}

// runDynamic performs the full dynamic pipeline, possibly repeated
func runDynamic(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := runContext(cfg)
	defer cancel()

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	root := fileRoot(cfg, name, true)

	repeats := cfg.Dynamic.Repeats
	if dynRepeats > 0 {
		repeats = dynRepeats
	}
	if repeats == 0 {
		repeats = 1
	}
	parallel := cfg.Dynamic.Parallel
	if dynParallel > 0 {
		parallel = dynParallel
	}
	if parallel == 0 {
		parallel = 1
	}

	reg, err := store.NewStore(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer reg.Close()

	p := newPipeline(cfg)
	dcfg := dynamicConfig(cfg)
	loader := engine.FileLoader{}

	var mu sync.Mutex
	var ids []string

	err = dynamic.RunRepeats(ctx, repeats, parallel, func(ctx context.Context, rep int) error {
		settings := baseSettings(cfg, root)
		if repeats > 1 {
			settings.FileRoot = fmt.Sprintf("%s_%d", root, rep)
			if settings.Seed > 0 {
				settings.Seed += int64(rep)
			}
		}

		res, err := p.Run(ctx, settings, dcfg)
		if err != nil {
			return fmt.Errorf("repeat %d: %w", rep, err)
		}
		run, err := process.DynamicRun(loader, res, logger)
		if err != nil {
			return fmt.Errorf("repeat %d: %w", rep, err)
		}

		rec := store.FromResult(res)
		if err := rec.AttachMerged(run); err != nil {
			return err
		}
		if err := reg.SaveRun(rec); err != nil {
			return err
		}

		mu.Lock()
		ids = append(ids, res.ID)
		fmt.Printf("Run %s complete: %d samples, logZ = %.4f\n",
			res.ID, run.Len(), *rec.LogZ)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("%d run(s) registered in %s\n", len(ids), reg.Path())
	return nil
}

// runProcess re-merges a registered run
func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := store.NewStore(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer reg.Close()

	rec, err := reg.GetRun(args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("run %s not found in registry", args[0])
	}

	res := &dynamic.Result{
		ID:          rec.ID,
		CreatedAt:   rec.CreatedAt,
		BaseDir:     rec.BaseDir,
		FileRoot:    rec.FileRoot,
		Goal:        rec.Goal,
		NInit:       rec.NInit,
		InitStep:    rec.InitStep,
		Resumed:     rec.Resumed,
		ResumeNDead: rec.ResumeNDead,
		ResumeNLike: rec.ResumeNLike,
		InitNLike:   rec.InitNLike,
		DynNLike:    rec.DynNLike,
		PeakOnset:   rec.PeakOnset,
		Schedule:    rec.Schedule,
	}
	run, err := process.DynamicRun(engine.FileLoader{}, res, logger)
	if err != nil {
		return err
	}
	if err := rec.AttachMerged(run); err != nil {
		return err
	}
	if err := reg.SaveRun(rec); err != nil {
		return err
	}

	fmt.Printf("Run %s reprocessed: %d samples, %d threads, logZ = %.4f\n",
		rec.ID, run.Len(), run.NumThreads(), *rec.LogZ)
	return nil
}

// listRuns prints the registered runs
func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := store.NewStore(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer reg.Close()

	recs, err := reg.ListRuns(50)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No runs registered")
		return nil
	}

	for _, rec := range recs {
		summary := "unprocessed"
		if rec.Samples != nil && rec.LogZ != nil {
			summary = fmt.Sprintf("%d samples, logZ = %.4f", *rec.Samples, *rec.LogZ)
		}
		fmt.Printf("%s  %s  %s  goal=%g  %s\n",
			rec.ID, rec.CreatedAt.Format(time.RFC3339), rec.FileRoot, rec.Goal, summary)
	}
	return nil
}
