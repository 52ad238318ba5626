// Package cmd contains the CLI setup and commands exposed to the user
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gregriff/parley/configs"
	"github.com/gregriff/parley/internal/app"
)

var ConfigFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "parley",
	Short:         "Terminal client for realtime chat rooms",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	// deferring this allows user to override config path with cli option
	cobra.OnInitialize(func() {
		cobra.CheckErr(configs.InitConfig(ConfigFile))
		setupLogging(viper.GetBool("debug"))
		slog.Debug("using config file", "path", ConfigFile)
	})

	var defaultConfigFilePath string
	if configDir, err := configs.GetConfigDir(); err == nil {
		defaultConfigFilePath = filepath.Join(configDir, "parley.toml")
	}
	rootCmd.PersistentFlags().StringVar(&ConfigFile, "config", defaultConfigFilePath, "config file")

	rootCmd.PersistentFlags().String("api-server", "", "Chat server origin, e.g. http://localhost:8080")
	rootCmd.PersistentFlags().Bool("debug", false, "Print debugging information")

	// expose to application via viper
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("servers.api-origin", rootCmd.PersistentFlags().Lookup("api-server"))
}

// setupLogging installs the default structured logger on stderr.
func setupLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// withApp opens the shared components for the duration of one command.
// A rejected session is cleared so the next command asks for a login.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(configs.Current(), slog.Default())
		if err != nil {
			return err
		}
		defer func() {
			if cErr := a.Close(); cErr != nil {
				slog.Warn("closing session store", "error", cErr)
			}
		}()
		return a.Check(fn(cmd.Context(), cmd, a, args))
	}
}
