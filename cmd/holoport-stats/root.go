package main

import (
	"log"

	"holoport-stats/internal/config"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	return newRootCmdFor(&app{})
}

func newRootCmdFor(a *app) *cobra.Command {
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:           "holoport-stats",
		Short:         "Report this host's app inventory and health, signed with the host key",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath, v)
			if err != nil {
				return err
			}
			a.wire(cfg, log.New(cmd.ErrOrStderr(), "", log.LstdFlags))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to config.yaml (defaults and environment only when empty)")
	flags.Int("admin-port", 0, "conductor admin interface port")
	flags.Int("app-port", 0, "conductor app interface port")
	flags.String("identity", "", "path to the identity bundle")
	flags.String("happs", "", "path to the happs manifest")
	_ = v.BindPFlag("conductor.admin_port", flags.Lookup("admin-port"))
	_ = v.BindPFlag("conductor.app_port", flags.Lookup("app-port"))
	_ = v.BindPFlag("identity.config_path", flags.Lookup("identity"))
	_ = v.BindPFlag("happs.path", flags.Lookup("happs"))

	rootCmd.AddCommand(
		newRunCmd(a),
		newHealthCmd(a),
		newIdentityCmd(a),
		newServeCmd(a),
	)
	return rootCmd
}
