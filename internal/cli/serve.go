package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/inventory/internal/app"
	"github.com/JonMunkholm/inventory/internal/config"
	"github.com/JonMunkholm/inventory/internal/logging"
)

func newServeCmd(e *env) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inventory form service",
		Long: `Starts the form session API. Settings come from the environment (and a
.env file); without PORTAL_BASE_URL the built-in reference portal is served
under UPSTREAM_MOUNT_PATH.`,
		Example: `  # Start with the built-in reference portal on port 8080
  inventoryctl serve

  # Start on a custom port
  inventoryctl serve --port 3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if e.portalURL != "" {
				cfg.Portal.BaseURL = e.portalURL
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			slog.Info("server starting", "addr", cfg.Server.Addr())
			return a.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default $SERVER_PORT)")

	return cmd
}
