package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"forgeloop/internal/server"
)

// ServerHost and ServerPort are the configured listen defaults, set
// during application wiring from config.yaml.
var (
	ServerHost = "127.0.0.1"
	ServerPort = 8642
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the forgeloop HTTP API",
	Long: `Start the forgeloop HTTP API server.

The API exposes project lifecycle operations, agent status, recent
events, and webhook management. OpenAPI documentation is served at
/openapi.json and interactive docs at /docs.

Host and port default to the workspace config (server.host,
server.port); flags override.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Controller == nil || Registry == nil || Bus == nil {
			return fmt.Errorf("services not initialized")
		}

		handler, err := server.New(server.Config{
			Controller:   Controller,
			Registry:     Registry,
			Bus:          Bus,
			Capabilities: Capabilities,
			Version:      appVersion,
		})
		if err != nil {
			return fmt.Errorf("building server: %w", err)
		}

		host := serveHost
		if host == "" {
			host = ServerHost
		}
		port := servePort
		if port < 0 {
			port = ServerPort
		}
		addr := fmt.Sprintf("%s:%d", host, port)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		fmt.Printf("Serving forgeloop API on http://%s (docs at /docs)\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", -1, "Listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
