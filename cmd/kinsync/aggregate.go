package main

import (
	"github.com/spf13/cobra"

	"github.com/syntrixbase/kinsync/pkg/aggregation"
	"github.com/syntrixbase/kinsync/pkg/query"
)

func newAggregateCmd(a *app) *cobra.Command {
	var (
		input, kind, field, filter string
		by                         []string
	)
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Group a JSON array of documents and reduce each group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := readDocuments(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			agg, err := aggregation.FromMap(map[string]interface{}{"kind": kind, "field": field})
			if err != nil {
				return err
			}
			agg.By(by...)
			f, err := parseFilter(filter)
			if err != nil {
				return err
			}
			if f != nil {
				agg.WithQuery(query.FromFilter(f))
			}

			out, err := agg.Process(docs)
			if err != nil {
				return err
			}
			a.logger.Debug("aggregation processed", "aggregation", agg.String(), "groups", len(out))
			return writeJSON(cmd.OutOrStdout(), aggregation.Finite(out))
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON array of documents, - for stdin")
	cmd.Flags().StringVar(&kind, "kind", "count", "count, sum, min, max or average")
	cmd.Flags().StringVar(&field, "field", "", "field the reducer reads")
	cmd.Flags().StringSliceVar(&by, "by", nil, "group-by fields")
	cmd.Flags().StringVar(&filter, "filter", "", "MongoDB style filter as JSON")
	return cmd
}
