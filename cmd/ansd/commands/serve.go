package commands

import (
	"github.com/spf13/cobra"

	"github.com/vinayprograms/ans/config"
	"github.com/vinayprograms/ans/internal/daemon"
	"github.com/vinayprograms/ans/logging"
	"github.com/vinayprograms/ans/shutdown"
)

var (
	serveConfigPath string
	serveAddr       string
	serveStore      string
)

// ServeCmd runs the registry daemon.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the registry",
	Long: `Run the registry HTTP API until SIGINT or SIGTERM.

Configuration is read from --config, or from ansd.toml in the working
directory or ~/.config/ans/ansd.toml, then overridden by the environment.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := config.Load(serveConfigPath)
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		if serveStore != "" {
			cfg.Store.Backend = serveStore
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		log := logging.New()
		log.SetLevel(logging.ParseLevel(cfg.Log.Level))
		if path != "" {
			log.Info("config_loaded", map[string]interface{}{"path": path})
		}

		ctx, stop := shutdown.NotifyContext(cmd.Context())
		defer stop()

		d, err := daemon.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		return d.ListenAndServe(ctx)
	},
}

func init() {
	ServeCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to the TOML config file")
	ServeCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	ServeCmd.Flags().StringVar(&serveStore, "store", "", "Store backend: memory, badger or nats")
}
