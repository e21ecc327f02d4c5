package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/agleyzer/reelserver/internal/config"
	"github.com/agleyzer/reelserver/internal/contact"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"port":          "server.port",
	"base-url":      "server.base_url",
	"media-root":    "media.root",
	"pattern":       "media.pattern",
	"catalog":       "catalog.path",
	"window":        "rotation.window",
	"interval":      "rotation.interval",
	"cors-origin":   "cors.origins",
	"test-endpoint": "contact.test_endpoint",
	"raft-id":       "cluster.raft_id",
	"raft-bind":     "cluster.bind",
	"peers":         "cluster.peers",
	"verbose":       "verbose",
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	v := config.New(fs)
	var configFile string

	load := func() (*config.Config, error) {
		return config.Load(v, configFile)
	}

	root := &cobra.Command{
		Use:          "reelserver",
		Short:        "Portfolio video server with range streaming and a featured showreel",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			logger := newLogger(cfg.Verbose)
			logger.Info("reelserver starting", "version", version)

			if err := serve(cfg, fs, logger); err != nil {
				logger.Error("application error", "error", err)
				return err
			}

			logger.Info("reelserver stopped")
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (yaml, toml or json)")
	flags.IntP("port", "p", 8080, "HTTP server port")
	flags.String("base-url", "", "Absolute URL prefix for showreel entries")
	flags.String("media-root", "public/videos", "Directory holding the video files")
	flags.String("pattern", "Edit {id}.mp4", "Filename pattern mapping a video id to a file")
	flags.String("catalog", "", "Projects JSON file; empty derives projects from the media directory")
	flags.Int("window", 3, "Number of featured projects")
	flags.Duration("interval", 0, "Featured carousel advance interval (default 5s)")
	flags.StringSlice("cors-origin", nil, "Allowed CORS origin, repeatable (default *)")
	flags.Bool("test-endpoint", false, "Expose GET /api/test-email")
	flags.String("raft-id", "", "Raft node id; enables cluster mode")
	flags.String("raft-bind", "", "Raft bind address (host:port)")
	flags.StringSlice("peers", nil, "Raft peer addresses including this node")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")

	for flag, key := range flagKeys {
		lo.Must0(v.BindPFlag(key, flags.Lookup(flag)))
	}

	root.AddCommand(newConfigCmd(v, load))
	root.AddCommand(newSetPasswordCmd())

	return root
}

// newConfigCmd prints every configuration key with its effective value.
func newConfigCmd(v *viper.Viper, load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show configuration keys, environment variables and effective values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := load(); err != nil {
				return err
			}
			for _, line := range config.Describe(v) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

// newSetPasswordCmd stores the SMTP password in the OS keyring so it never
// has to appear in config files or the environment.
func newSetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-password <smtp-user>",
		Short: "Store the SMTP password in the OS keyring (read from stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && password == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(password, "\r\n")
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}

			if err := contact.StorePassword(args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored SMTP password for %s\n", args[0])
			return nil
		},
	}
}
