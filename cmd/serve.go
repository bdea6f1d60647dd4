package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datalens/internal/server"
)

var (
	serveAddr      string
	serveStaticDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline results as a JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("configuration not loaded")
		}
		if cmd.Flags().Changed("addr") && serveAddr != "" {
			cfg.ListenAddr = serveAddr
		}
		if cmd.Flags().Changed("static-dir") {
			cfg.StaticDir = serveStaticDir
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return server.New(cfg, logger).Run(ctx, cfg.ListenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveStaticDir, "static-dir", "", "frontend build directory to serve (overrides config)")
}
