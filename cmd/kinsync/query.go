package main

import (
	"github.com/spf13/cobra"

	"github.com/syntrixbase/kinsync/pkg/query"
)

type queryFlags struct {
	input  string
	filter string
	sort   string
	fields string
	skip   int
	limit  int
}

func newQueryCmd(a *app) *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Filter, sort, page and project a JSON array of documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := readDocuments(f.input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			q, err := f.build(cmd)
			if err != nil {
				return err
			}
			out, err := q.Process(docs)
			if err != nil {
				return err
			}
			a.logger.Debug("query processed", "in", len(docs), "out", len(out))
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&f.input, "input", "i", "-", "JSON array of documents, - for stdin")
	cmd.Flags().StringVar(&f.filter, "filter", "", "MongoDB style filter as JSON")
	cmd.Flags().StringVar(&f.sort, "sort", "", "sort fields, prefix with - for descending (a,-b)")
	cmd.Flags().StringVar(&f.fields, "fields", "", "comma separated fields to keep")
	cmd.Flags().IntVar(&f.skip, "skip", 0, "documents to skip")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum documents to return")
	return cmd
}

func (f *queryFlags) build(cmd *cobra.Command) (*query.Query, error) {
	filter, err := parseFilter(f.filter)
	if err != nil {
		return nil, err
	}
	q := query.FromFilter(filter)
	applySort(q, f.sort)
	if fields := splitList(f.fields); len(fields) > 0 {
		q.Fields(fields...)
	}
	if f.skip > 0 {
		q.Skip(f.skip)
	}
	if cmd.Flags().Changed("limit") {
		q.Limit(f.limit)
	}
	return q, nil
}
