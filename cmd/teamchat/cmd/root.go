package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/concord-chat/teamchat/internal/client"
	"github.com/concord-chat/teamchat/internal/config"
	"github.com/concord-chat/teamchat/internal/logx"
	"github.com/concord-chat/teamchat/internal/themes"
	"github.com/concord-chat/teamchat/internal/tui"
)

var (
	configPath string
	serverAddr string
	themeName  string
	logLevel   string
)

// runtime holds what the persistent pre-run builds for the subcommands
type runtime struct {
	cfg     *config.Config
	engine  *client.Engine
	release func()
	logFile *os.File
}

var rt runtime

var rootCmd = &cobra.Command{
	Use:   "teamchat",
	Short: "Terminal client for teamchat",
	Long: `teamchat is a terminal client for a channel-based team chat service.

Run without a subcommand to open the full-screen client. The subcommands
work headless against the same stored session.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) { teardown() },
	RunE:              runTUI,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		teardown()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "server address, e.g. https://chat.example.com (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	rootCmd.Flags().StringVar(&themeName, "theme", "", "theme name (overrides config)")

	rootCmd.AddCommand(loginCmd, logoutCmd, channelsCmd, sendCmd)
}

// setup loads configuration, starts logging and builds the engine
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serverAddr != "" {
		cfg.API.Server = serverAddr
		cfg.API.BaseURL = ""
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if themeName != "" {
		cfg.Theme = themeName
	}

	if err := openLog(cfg.Log); err != nil {
		return err
	}

	deps, release, err := client.DepsFromConfig(cfg)
	if err != nil {
		return err
	}

	rt = runtime{cfg: cfg, engine: client.New(deps), release: release, logFile: rt.logFile}
	logx.Info("teamchat starting", "api", cfg.APIBaseURL(), "session_backend", cfg.Session.Backend)
	return nil
}

// openLog sends logs to the configured file. Without one logging is off, so
// the full-screen client is not corrupted.
func openLog(cfg config.LogConfig) error {
	if cfg.File == "" {
		logx.Disable()
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	rt.logFile = f
	logx.Init(f, cfg.Level, cfg.Pretty)
	return nil
}

func teardown() {
	if rt.engine != nil {
		logx.Debug("closing engine")
		rt.engine.Close()
		rt.engine = nil
	}
	if rt.release != nil {
		rt.release()
		rt.release = nil
	}
	if rt.logFile != nil {
		rt.logFile.Close()
		rt.logFile = nil
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	registry := themes.NewRegistry(afero.NewOsFs(), rt.cfg.ThemesDir)
	theme, err := registry.Get(rt.cfg.Theme)
	if err != nil {
		logx.Warn("theme unavailable, using default", "theme", rt.cfg.Theme, "error", err.Error())
		theme = themes.Default()
	}

	if err := rt.engine.Start(ctx); err != nil {
		logx.Warn("initial sync failed", "error", err.Error())
	}

	app := tui.NewApp(rt.engine, theme.BuildStyles())
	if err := tui.Run(ctx, rt.engine, app); err != nil {
		logx.Error(err, "client exited with an error")
		return err
	}
	return nil
}

// startSession resumes the stored session for a headless command
func startSession(ctx context.Context) error {
	if err := rt.engine.Start(ctx); err != nil {
		return err
	}
	if !rt.engine.IsAuthenticated() {
		return fmt.Errorf("not signed in, run `teamchat login` first")
	}
	return nil
}
