package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/decider/internal/cli"
	"github.com/TimurManjosov/decider/internal/store"
)

var featuresOpts localOptions

var featuresCmd = &cobra.Command{
	Use:   "features [name...]",
	Short: "List features",
	Long: `List the features of a document (--source) or of a running service.

Examples:
  decider features --source ./features.yaml
  decider features new_checkout --base-url http://localhost:8080 --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := outputFormat()
		if err != nil {
			return err
		}

		ctx := context.Background()
		var features []*store.Feature
		if featuresOpts.source != "" {
			d, err := openDecider(ctx, cmd, featuresOpts, featuresOpts.source)
			if err != nil {
				return err
			}
			defer d.Close()
			features = d.Features()
		} else {
			c, err := newClient()
			if err != nil {
				return err
			}
			resp, err := c.ListFeatures(ctx)
			if err != nil {
				return fmt.Errorf("failed to list features: %w", err)
			}
			features = resp.Features
		}

		if len(args) > 0 {
			features, err = selectFeatures(features, args)
			if err != nil {
				return err
			}
		}

		if quiet {
			return nil
		}
		if len(features) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No features found")
			return nil
		}
		return cli.PrintFeatures(cmd.OutOrStdout(), features, out)
	},
}

func selectFeatures(all []*store.Feature, names []string) ([]*store.Feature, error) {
	byName := make(map[string]*store.Feature, len(all))
	for _, f := range all {
		byName[f.Name] = f
	}
	out := make([]*store.Feature, 0, len(names))
	for _, n := range names {
		f, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("feature not found: %s", n)
		}
		out = append(out, f)
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(featuresCmd)

	featuresOpts.register(featuresCmd, true)
}
