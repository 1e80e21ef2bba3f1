package cmd

import (
	"github.com/spf13/cobra"
	"video-sentinel/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "video-sentinel",
		Short: "video event monitoring and search",
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(migrate(config))
	return rootCmd
}
