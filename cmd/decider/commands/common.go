package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TimurManjosov/decider/internal/cli"
	"github.com/TimurManjosov/decider/internal/client"
	"github.com/TimurManjosov/decider/internal/decider"
	"github.com/TimurManjosov/decider/internal/logging"
	"github.com/TimurManjosov/decider/internal/store"
)

// localOptions are the flags of commands that can evaluate a document
// in-process.
type localOptions struct {
	source         string
	decisionMakers string
	hashVersion    int
}

func (o *localOptions) register(cmd *cobra.Command, withSource bool) {
	if withSource {
		cmd.Flags().StringVar(&o.source, "source", "", "Feature document: path, file://, postgres:// (local mode)")
	}
	cmd.Flags().StringVar(&o.decisionMakers, "decision-makers", "", "Enabled stages, space separated (default: all)")
	cmd.Flags().IntVar(&o.hashVersion, "hash-version", 0, "Bucketing hash version when the document sets none")
}

// openDecider loads source in-process.
func openDecider(ctx context.Context, cmd *cobra.Command, o localOptions, source string) (*decider.Decider, error) {
	src, err := store.NewSource(ctx, source)
	if err != nil {
		return nil, err
	}
	d, err := decider.New(ctx, decider.Options{
		DecisionMakers: o.decisionMakers,
		Source:         src,
		HashVersion:    o.hashVersion,
		Logger:         cliLogger(cmd.ErrOrStderr()),
	})
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return d, nil
}

func cliLogger(w io.Writer) zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	return logging.NewWithWriter("debug", "console", w)
}

// newClient builds an API client from flags, environment and profile.
func newClient() (*client.Client, error) {
	p, err := cli.ResolveProfile(profile, baseURL, apiKey)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return client.NewClient(p.BaseURL, p.APIKey), nil
}

func outputFormat() (cli.OutputFormat, error) {
	return cli.ParseFormat(format)
}
