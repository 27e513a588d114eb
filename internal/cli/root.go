// Package cli implements posctl, the terminal-side client that creates and
// settles orders, keeps them offline while the cloud is unreachable and
// replays them once it is back.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pos-edge/config"
	"pos-edge/internal/cloud"
	"pos-edge/internal/offline"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *Config
	out     printer
}

func (a *app) openCache() (*offline.Cache, error) {
	return offline.Open(a.cfg.DB.DSN)
}

func (a *app) orderClient() *cloud.OrderClient {
	return cloud.NewOrderClient(cloud.NewClient(a.cfg.CloudTimeout()), a.cfg.Cloud.URL, a.cfg.Cloud.Token)
}

// NewRootCmd builds the posctl command tree with its own configuration
// state.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "posctl",
		Short: "Restaurant POS terminal client",
		Long: `posctl creates and settles restaurant orders against the cloud.
When the cloud cannot be reached, new orders are kept in a local database
and synced later with "posctl sync".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.v, a.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			format, err := ParseFormat(cfg.Output)
			if err != nil {
				return err
			}
			logCfg := config.LogConfig{Level: cfg.LogLevel, Format: "console"}
			logCfg.ConfigureZerolog()

			a.cfg = cfg
			a.out = printer{format: format, w: cmd.OutOrStdout()}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./posctl.yaml or $HOME/.posctl/posctl.yaml)")
	flags.String("cloud-url", "", "cloud API base URL")
	flags.String("token", "", "cloud API bearer token")
	flags.String("gateway-url", "", "edge gateway URL notified of synced orders")
	flags.String("db", "", "offline order database (sqlite path or postgres URL)")
	flags.String("restaurant", "", "restaurant id")
	flags.String("user", "", "acting user id")
	flags.StringP("output", "o", "", "output format (text|json)")
	flags.String("log-level", "", "log level (debug|info|warn|error)")

	for key, flag := range map[string]string{
		"cloud.url":     "cloud-url",
		"cloud.token":   "token",
		"gateway.url":   "gateway-url",
		"db.dsn":        "db",
		"restaurant.id": "restaurant",
		"user.id":       "user",
		"output":        "output",
		"log_level":     "log-level",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(newOrdersCmd(a), newSyncCmd(a))
	return rootCmd
}

// Execute runs posctl and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
