package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cirrushq/cirrus/internal/observability"
	"github.com/cirrushq/cirrus/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP connector service",
	Long: `Serve drive connectors over HTTP.

Endpoints:
  GET  /healthz
  POST /v1/datasources/{name}/browse
  POST /v1/datasources/{name}/download

The service is stateless: each request body carries the credentials it
runs with. Listen address and timeouts come from the config file's
server section (CIRRUS_SERVER_* env overrides apply).`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost  string
	servePort  int
	serveDebug bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Verbose development logging")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger, err := observability.NewServerLogger(serveDebug || cfg.Logging.Level == "debug")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	srv := server.New(cfg.Server, registry, logger, versionInfo.Version)
	return srv.Run(cmd.Context())
}
