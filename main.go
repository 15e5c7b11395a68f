// main.go
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/config"
	"storefront/internal/logger"
)

var (
	configPath string
	cfg        *config.Config
)

func init() {
	loc, err := time.LoadLocation("America/Mexico_City")
	if err == nil {
		time.Local = loc // This affects the standard log package
	}
}

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Meat shop storefront and sports picks backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Setup configuration first
		config.LoadEnv()
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		// Step 2: Setup logging
		if err := logger.SetupLogger(cfg.LoggerConfig()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default $CONFIG_FILE)")
	rootCmd.AddCommand(serveCmd, catalogCmd, picksCmd, orderCmd, ordersCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Printf("storefront: %v", err)
		os.Exit(1)
	}
}
