package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/decider/internal/cli"
)

var (
	chooseOpts        localOptions
	chooseContext     string
	chooseContextFile string
)

var chooseCmd = &cobra.Command{
	Use:   "choose [feature...]",
	Short: "Evaluate features for a context",
	Long: `Evaluate one, several or all features for a context and print the
decisions with their events.

Without --source the features are evaluated by a running service.

Examples:
  decider choose new_checkout --source ./features.yaml --context '{"user_id":"u-1"}'
  decider choose --source ./features.yaml --context-file ctx.json --format json
  decider choose new_checkout --base-url http://localhost:8080 --context '{"user_id":"u-1"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := outputFormat()
		if err != nil {
			return err
		}
		evalCtx, err := readContext(chooseContext, chooseContextFile)
		if err != nil {
			return err
		}

		var rows []cli.DecisionRow
		if chooseOpts.source != "" {
			rows, err = chooseLocal(cmd, evalCtx, args)
		} else {
			rows, err = chooseRemote(evalCtx, args)
		}
		if err != nil {
			return err
		}

		if quiet {
			return nil
		}
		return cli.PrintDecisions(cmd.OutOrStdout(), rows, out)
	},
}

func chooseLocal(cmd *cobra.Command, evalCtx map[string]any, names []string) ([]cli.DecisionRow, error) {
	d, err := openDecider(context.Background(), cmd, chooseOpts, chooseOpts.source)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	if len(names) == 1 {
		dec, err := d.Choose(names[0], evalCtx)
		if err != nil {
			return nil, err
		}
		return []cli.DecisionRow{{Feature: names[0], Decision: &dec}}, nil
	}

	outcomes, err := d.ChooseAll(evalCtx, names...)
	if err != nil {
		return nil, err
	}
	rows := make([]cli.DecisionRow, len(outcomes))
	for i, o := range outcomes {
		rows[i] = cli.DecisionRow{Feature: o.Feature}
		if o.Err != nil {
			rows[i].Error = o.Err.Error()
			continue
		}
		dec := o.Decision
		rows[i].Decision = &dec
	}
	return rows, nil
}

func chooseRemote(evalCtx map[string]any, names []string) ([]cli.DecisionRow, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	ctx := context.Background()

	if len(names) == 1 {
		dec, err := c.Choose(ctx, names[0], evalCtx)
		if err != nil {
			return nil, err
		}
		return []cli.DecisionRow{{Feature: names[0], Decision: dec}}, nil
	}

	resp, err := c.ChooseAll(ctx, evalCtx, names...)
	if err != nil {
		return nil, err
	}
	rows := make([]cli.DecisionRow, 0, len(resp.Decisions)+len(resp.Errors))
	for name, dec := range resp.Decisions {
		rows = append(rows, cli.DecisionRow{Feature: name, Decision: &dec})
	}
	for name, e := range resp.Errors {
		rows = append(rows, cli.DecisionRow{Feature: name, Error: e.Message})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Feature < rows[j].Feature })
	return rows, nil
}

// readContext parses the evaluation context from --context or
// --context-file ("-" reads stdin).
func readContext(inline, file string) (map[string]any, error) {
	var data []byte
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("use either --context or --context-file")
	case inline != "":
		data = []byte(inline)
	case file == "-":
		b, err := readAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read context: %w", err)
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read context: %w", err)
		}
		data = b
	default:
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("context must be a JSON object: %w", err)
	}
	return m, nil
}

func readAll(f *os.File) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(f)
	return buf.Bytes(), err
}

func init() {
	rootCmd.AddCommand(chooseCmd)

	chooseOpts.register(chooseCmd, true)
	chooseCmd.Flags().StringVar(&chooseContext, "context", "", "Evaluation context as a JSON object")
	chooseCmd.Flags().StringVar(&chooseContextFile, "context-file", "", "File holding the evaluation context (- for stdin)")
}
