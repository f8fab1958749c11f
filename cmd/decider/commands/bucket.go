package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/decider/internal/rollout"
)

var (
	bucketHashVersion int
	bucketFraction    float64
	bucketWeights     string
)

var bucketCmd = &cobra.Command{
	Use:   "bucket <namespace> <id>",
	Short: "Show the bucket of an id",
	Long: `Print the stable bucket in [0,1) of an id under a namespace, and
optionally whether it falls inside a fraction or which weighted slot it gets.

Namespaces used by the decision chain:
  holdout:<holdout id>      holdout stage
  mutex:<group id>          mutex group stage
  feature:<name>:<version>  fractional availability
  variant:<name>            variant assignment

Examples:
  decider bucket feature:new_checkout:1 user-3 --fraction 0.5
  decider bucket variant:checkout_experiment user-3 --weights 0.5,0.5`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hv, err := rollout.ParseHashVersion(bucketHashVersion)
		if err != nil {
			return err
		}
		ns, id := args[0], args[1]
		b := hv.Bucket(ns, id)

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "key:    %s\n", rollout.Key(ns, id))
		fmt.Fprintf(w, "hash:   v%d\n", hv)
		fmt.Fprintf(w, "bucket: %s\n", strconv.FormatFloat(b, 'f', 6, 64))

		if cmd.Flags().Changed("fraction") {
			if err := rollout.ValidateFraction(bucketFraction); err != nil {
				return err
			}
			fmt.Fprintf(w, "in:     %t\n", rollout.InFraction(b, bucketFraction))
		}
		if bucketWeights != "" {
			weights, err := parseWeights(bucketWeights)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "slot:   %d\n", rollout.Allocate(b, weights))
		}
		return nil
	},
}

func parseWeights(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	weights := make([]float64, len(parts))
	for i, p := range parts {
		w, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", p, err)
		}
		weights[i] = w
	}
	if err := rollout.ValidateWeights(weights); err != nil {
		return nil, err
	}
	return weights, nil
}

func init() {
	rootCmd.AddCommand(bucketCmd)

	bucketCmd.Flags().IntVar(&bucketHashVersion, "hash-version", int(rollout.DefaultHashVersion), "Bucketing hash version (1 or 2)")
	bucketCmd.Flags().Float64Var(&bucketFraction, "fraction", 0, "Report whether the bucket falls inside this fraction")
	bucketCmd.Flags().StringVar(&bucketWeights, "weights", "", "Comma separated weights; report the allocated slot")
}
