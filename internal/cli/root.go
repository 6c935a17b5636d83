// Package cli implements the syncctl operator commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"example.com/stravasync/internal/app"
	"example.com/stravasync/internal/config"
	"example.com/stravasync/internal/logging"
)

const envPrefix = "STRAVASYNC"

// Factory builds the service graph for a command.
type Factory func(ctx context.Context, cfg config.Config) (*app.App, error)

type root struct {
	v       *viper.Viper
	cfgFile string
	factory Factory
}

// NewRootCommand assembles the command tree. A nil factory uses app.New with
// a logger writing to stderr.
func NewRootCommand(factory Factory) *cobra.Command {
	r := &root{v: viper.New(), factory: factory}

	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operate the Strava activity sync",
		Long:          "syncctl connects Strava accounts, runs activity syncs and reports on stored activities.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return r.initConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&r.cfgFile, "config", "", "config file (default is $HOME/.stravasync/stravasync.yaml)")
	cmd.PersistentFlags().String("user", "", "local user id the command acts for")
	cmd.PersistentFlags().Bool("json", false, "print results as JSON")
	cmd.PersistentFlags().String("store-driver", "", "storage backend: postgres, sqlite or memory")
	_ = r.v.BindPFlag("user", cmd.PersistentFlags().Lookup("user"))
	_ = r.v.BindPFlag("json", cmd.PersistentFlags().Lookup("json"))
	_ = r.v.BindPFlag("store_driver", cmd.PersistentFlags().Lookup("store-driver"))

	cmd.AddCommand(
		r.authorizeURLCommand(),
		r.refreshCommand(),
		r.syncCommand(),
		r.statsCommand(),
		r.activitiesCommand(),
		r.tokenCommand(),
	)
	return cmd
}

// Execute runs the command tree against os.Args.
func Execute() {
	if err := NewRootCommand(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (r *root) initConfig() error {
	if r.cfgFile != "" {
		r.v.SetConfigFile(r.cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return err
		}
		r.v.AddConfigPath(filepath.Join(home, ".stravasync"))
		r.v.SetConfigName("stravasync")
		r.v.SetConfigType("yaml")
	}

	r.v.SetEnvPrefix(envPrefix)
	r.v.AutomaticEnv()

	if err := r.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || r.cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// config resolves settings from flags, STRAVASYNC_* env, the config file and
// finally the plain environment.
func (r *root) config() config.Config {
	return config.LoadWith(func(key string) (string, bool) {
		vk := strings.ToLower(key)
		if r.v.IsSet(vk) {
			if value := r.v.GetString(vk); value != "" {
				return value, true
			}
		}
		return os.LookupEnv(key)
	})
}

func (r *root) open(ctx context.Context, stderr io.Writer) (*app.App, error) {
	cfg := r.config()
	if r.factory != nil {
		return r.factory(ctx, cfg)
	}
	logger := logging.NewWithWriter(logging.Config{Service: "syncctl", Version: cfg.Version, Env: cfg.Env, Level: cfg.LogLevel, Format: "text"}, stderr)
	return app.New(ctx, cfg, logger)
}

func (r *root) userID() (string, error) {
	user := strings.TrimSpace(r.v.GetString("user"))
	if user == "" {
		return "", errors.New("--user (or STRAVASYNC_USER) is required")
	}
	return user, nil
}

func (r *root) printer(cmd *cobra.Command) *printer {
	return &printer{out: cmd.OutOrStdout(), json: r.v.GetBool("json")}
}
