package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/concord-chat/teamchat/internal/devserver"
	"github.com/concord-chat/teamchat/internal/logx"
)

var (
	configPath string
	host       string
	port       int
	secret     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "teamchat-devserver",
	Short: "In-memory teamchat backend for local development",
	Long: `teamchat-devserver serves the teamchat REST and realtime API from memory.

Everything is lost when it stops. Point the client at it with
--server http://127.0.0.1:5002.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().StringVar(&host, "host", "", "host to bind to (overrides config)")
	rootCmd.Flags().IntVar(&port, "port", 0, "port to bind to (overrides config)")
	rootCmd.Flags().StringVar(&secret, "secret", "", "token signing secret (overrides config)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logx.Init(os.Stderr, logLevel, true)

	config := devserver.DefaultConfig()
	if configPath != "" {
		if err := loadConfig(configPath, config); err != nil {
			return err
		}
	}

	// Apply command line overrides
	if host != "" {
		config.Host = host
	}
	if port != 0 {
		config.Port = port
	}
	if secret != "" {
		config.Secret = secret
	}

	printBanner(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return devserver.New(config).Run(ctx)
}

func loadConfig(path string, config *devserver.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func printBanner(cmd *cobra.Command) {
	banner := `
  _                            _           _
 | |_ ___  __ _ _ __ ___   ___| |__   __ _| |_
 | __/ _ \/ _' | '_ ' _ \ / __| '_ \ / _' | __|
 | ||  __/ (_| | | | | | | (__| | | | (_| | |_
  \__\___|\__,_|_| |_| |_|\___|_| |_|\__,_|\__|

  Development Server (in-memory)
  ==============================
`
	fmt.Fprintln(cmd.OutOrStdout(), banner)
}
