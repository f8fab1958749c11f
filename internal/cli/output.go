package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/decider/internal/decider"
	"github.com/TimurManjosov/decider/internal/store"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format: %s (use table, json or yaml)", s)
}

// DecisionRow is one evaluated feature as printed by the choose command.
type DecisionRow struct {
	Feature  string            `json:"feature" yaml:"feature"`
	Decision *decider.Decision `json:"decision,omitempty" yaml:"decision,omitempty"`
	Error    string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// PrintFeatures outputs features in the specified format
func PrintFeatures(w io.Writer, features []*store.Feature, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, map[string][]*store.Feature{"features": features})
	case FormatYAML:
		return printYAML(w, map[string][]*store.Feature{"features": features})
	case FormatTable:
		return printFeatureTable(w, features)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintDecisions outputs decisions in the specified format
func PrintDecisions(w io.Writer, rows []DecisionRow, format OutputFormat) error {
	switch format {
	case FormatJSON:
		if len(rows) == 1 && rows[0].Error == "" {
			return printJSON(w, rows[0].Decision)
		}
		return printJSON(w, map[string][]DecisionRow{"decisions": rows})
	case FormatYAML:
		return printYAML(w, map[string][]DecisionRow{"decisions": rows})
	case FormatTable:
		return printDecisionTable(w, rows)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// printYAML round-trips through JSON so that the json tags and value
// encodings apply to YAML output as well.
func printYAML(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(generic)
}

func printFeatureTable(w io.Writer, features []*store.Feature) error {
	table := tablewriter.NewWriter(w)

	table.Header("Name", "ID", "Version", "Variants", "Availability", "Holdout", "Mutex Group", "Value")

	for _, f := range features {
		availability := "-"
		if f.FractionalAvailability != nil {
			availability = formatFraction(*f.FractionalAvailability)
		}
		holdout := "-"
		if f.Holdout != nil {
			holdout = f.Holdout.ID + " " + formatFraction(f.Holdout.Fraction)
		}
		group := "-"
		if f.MutexGroup != nil {
			group = f.MutexGroup.ID
		}

		variants := make([]string, len(f.Variants))
		for i, v := range f.Variants {
			variants[i] = v.Name + ":" + formatFraction(v.Weight)
		}

		if err := table.Append(
			f.Name,
			strconv.FormatInt(f.ID, 10),
			strconv.FormatInt(f.Version, 10),
			orDash(strings.Join(variants, " ")),
			availability,
			holdout,
			group,
			truncate(compactJSON(f.Value), 40),
		); err != nil {
			return err
		}
	}

	return table.Render()
}

func printDecisionTable(w io.Writer, rows []DecisionRow) error {
	table := tablewriter.NewWriter(w)

	table.Header("Feature", "Variant", "Value", "Events", "Error")

	for _, r := range rows {
		variant, val, events := "-", "-", "-"
		if d := r.Decision; d != nil {
			variant = orDash(d.VariantName())
			if d.Value != nil {
				val = truncate(d.Value.String(), 40)
			}
			events = orDash(strings.Join(d.Events, " "))
		}
		if err := table.Append(r.Feature, variant, val, events, orDash(r.Error)); err != nil {
			return err
		}
	}

	return table.Render()
}

func formatFraction(f float64) string {
	return strconv.FormatFloat(f*100, 'f', -1, 64) + "%"
}

func compactJSON(v any) string {
	if v == nil {
		return "-"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
