package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abramin/callrisk/internal/metrics"
	"github.com/abramin/callrisk/internal/server"
)

var (
	servePort  int
	serveGraph string
	serveVulns string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the callrisk HTTP server",
	Long: `Start an HTTP server that accepts call graph and vulnerability uploads
and serves risk listings, traces, component and attack path analyses.

A graph and vulnerabilities can be preloaded from files; otherwise the
server starts empty and waits for POST /graph.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		m := metrics.New()
		ws := newWorkspace(m)
		if serveGraph != "" {
			if err := load(ws, inputs{graphPath: serveGraph, vulnsPath: serveVulns}); err != nil {
				return fmt.Errorf("preloading: %w", err)
			}
		} else if serveVulns != "" {
			return fmt.Errorf("--vulns requires --graph")
		}

		srv := server.New(server.Deps{
			Config:    cfg,
			Workspace: ws,
			Analyzer:  newAnalyzer(m),
			Logger:    logger,
			Metrics:   m,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "callrisk listening on http://localhost:%d\n", cfg.Server.Port)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 3000, "port to listen on")
	serveCmd.Flags().StringVar(&serveGraph, "graph", "", "graph file (JSON or YAML) to preload")
	serveCmd.Flags().StringVar(&serveVulns, "vulns", "", "vulnerabilities file (JSON or YAML) to preload")
}
