package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	cfgpkg "github.com/KaramelBytes/riskloom-cli/internal/config"
	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
	"github.com/KaramelBytes/riskloom-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	debug   bool

	// Loaded configuration
	cfg     *cfgpkg.Global
	cfgErr  error
	logger  = slog.New(slog.NewTextHandler(os.Stderr, nil))
	logFile *os.File
)

// LogFileName is written below logs_dir.
const LogFileName = "riskloom.log"

var rootCmd = &cobra.Command{
	Use:   "riskloom",
	Short: "riskloom: insurance risk analytics and pricing",
	Long: `riskloom explores a motor insurance portfolio, tests risk hypotheses, trains
claim severity and claim probability models and serves a pricing dashboard that
turns them into a risk-based premium suggestion.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	err := rootCmd.Execute()
	closeLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./riskloom.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func loadConfig() {
	cfg, cfgErr = cfgpkg.Load(cfgFile)
	if cfgErr != nil {
		// Non-fatal: config show/set still work
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", cfgErr)
		setupLogger("", debug)
		return
	}
	setupLogger(cfg.LogsDir, debug || cfg.Debug)
}

// setupLogger logs to stderr and, when logsDir is writable, to logsDir/riskloom.log.
func setupLogger(logsDir string, verbose bool) {
	closeLog()
	var w io.Writer = os.Stderr
	if logsDir != "" {
		if err := utils.EnsureDir(logsDir); err == nil {
			f, err := os.OpenFile(filepath.Join(logsDir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				logFile = f
				w = io.MultiWriter(os.Stderr, f)
			}
		}
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func closeLog() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// requireConfig returns the loaded config or the reason it is missing.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg == nil {
		if cfgErr != nil {
			return nil, fmt.Errorf("config: %w", cfgErr)
		}
		return nil, errors.New("config not loaded")
	}
	return cfg, nil
}

// loadTable reads the dataset named by file. An empty name means the raw
// dataset; an existing path is read directly; anything else is looked up
// below <data_dir>/raw.
func loadTable(file string) (*dataset.Table, string, error) {
	c, err := requireConfig()
	if err != nil {
		return nil, "", err
	}
	if file != "" {
		if st, err := os.Stat(file); err == nil && !st.IsDir() {
			t, err := dataset.ReadFile(file)
			if err != nil {
				return nil, "", fmt.Errorf("load %s: %w", filepath.Base(file), err)
			}
			return t, file, nil
		}
	}
	l := dataset.NewLoader(c.DataDir)
	t, err := l.Load(file)
	if err != nil {
		return nil, "", withHint(err)
	}
	return t, l.RawPath(file), nil
}

// withHint adds setup guidance to a missing dataset error.
func withHint(err error) error {
	if errors.Is(err, dataset.ErrNotFound) {
		return fmt.Errorf("%w\n  Place the pipe-delimited dataset there or set DATA_DIR", err)
	}
	return err
}
