package main

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"place-explorer/server/internal/logger"
	"place-explorer/server/internal/model"
)

func newLookupCmd(opts *rootOptions) *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "lookup <place_id>",
		Short: "Resolve one place and print its details as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			gw, closeGateway, err := buildGateway(cfg, logger.With("places"))
			if err != nil {
				return err
			}
			defer closeGateway()

			fields := model.FullDetailFields()
			if preview {
				fields = model.PreviewFields()
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Places.Timeout)
			defer cancel()

			details, err := gw.Resolve(ctx, model.PlaceReference{PlaceID: args[0]}, fields)
			if err != nil {
				return errors.Wrapf(err, "lookup %s", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(details)
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "request the preview field set only")
	return cmd
}
