package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syntrixbase/kinsync/internal/repository"
	"github.com/syntrixbase/kinsync/pkg/model"
	"github.com/syntrixbase/kinsync/pkg/query"
)

func newPullCmd(a *app) *cobra.Command {
	var collection, filter string
	var dropLocal bool
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Copy a collection from the backend into local storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.App.AppKey == "" {
				return model.NewError(model.ErrMissingConfiguration, "app.app_key is required to pull")
			}
			f, err := parseFilter(filter)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			sc, err := repository.FromConfig(a.cfg, nil, a.logger)
			if err != nil {
				return err
			}
			defer sc.Close()
			if err := sc.Init(ctx); err != nil {
				return err
			}
			network, err := sc.Repository(repository.KindNetwork)
			if err != nil {
				return err
			}
			offline, err := sc.Offline()
			if err != nil {
				return err
			}

			docs, err := network.Read(ctx, collection, query.FromFilter(f))
			if err != nil {
				return err
			}
			if dropLocal {
				if err := offline.Clear(ctx, collection); err != nil {
					return err
				}
			}
			if _, err := offline.Update(ctx, collection, docs); err != nil {
				return err
			}
			a.logger.Info("collection pulled", "collection", collection, "documents", len(docs), "storage", sc.Storage())
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "pulled %d documents into %s\n", len(docs), offline.Key(collection))
			return err
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "collection to pull")
	cmd.Flags().StringVar(&filter, "filter", "", "MongoDB style filter as JSON")
	cmd.Flags().BoolVar(&dropLocal, "clear", false, "drop the local copy before saving")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}
