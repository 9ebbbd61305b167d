package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/organizer-backend/internal/app"
	"github.com/yungbote/organizer-backend/internal/utils"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API together with the job worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New()
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = ":" + utils.GetEnv("PORT", "8080", a.Log)
			}
			a.Start()
			return a.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	return cmd
}
