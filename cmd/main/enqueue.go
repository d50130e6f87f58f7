package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <replay-id>...",
	Short: "Queue replays for breadcrumb sync",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := loadContainer(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Service.Enqueue(ctx, args...); err != nil {
		return err
	}

	log.Infof("✅ Enqueued %d replays", len(args))
	return nil
}
