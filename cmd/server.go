package cmd

import (
	"github.com/spf13/cobra"
	"video-sentinel/config"
	server2 "video-sentinel/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http server and analysis workers",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
