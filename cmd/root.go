package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhfmzl/priceUpdate-BTB/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "priceupdate",
	Short: "Player card price collection campaigns",
	Long:  "Searches player reports, reads per-grade market prices from the datacenter pages with a headless browser, and upserts them into the prices collection.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
