package main

import (
	_ "embed"
	"encoding/json"
	"fmt"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"

	"github.com/BarnBuilder412/smsync/pkg/config"
)

var (
	//go:embed config/senders.json
	sendersInput string
	//go:embed config/categories.json
	categoriesInput string
)

// rootOptions holds global flags shared by all subcommands.
type rootOptions struct {
	configFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "smsync",
		Short: "Sync bank SMS transactions to a remote expense ledger",
		Long: "smsync watches a message dump for bank transaction SMS, extracts\n" +
			"amount, merchant and category from each, and uploads new transactions\n" +
			"to a remote ledger. Already-uploaded transactions are remembered and\n" +
			"never sent twice.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a JSON config file (environment variables take precedence)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newEnableCommand(opts))
	cmd.AddCommand(newDisableCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))

	return cmd
}

// loadConfig merges the optional JSON config file with environment
// variables, environment winning, and attaches the embedded sender and
// category tables.
func loadConfig(opts *rootOptions) (config.Config, error) {
	var cfg config.Config

	k := koanf.New(".")
	if opts.configFile != "" {
		if err := k.Load(file.Provider(opts.configFile), kjson.Parser()); err != nil {
			return cfg, fmt.Errorf("loading config file: %w", err)
		}
	}
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return cfg, fmt.Errorf("loading environment: %w", err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return cfg, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := json.Unmarshal([]byte(sendersInput), &cfg.Senders); err != nil {
		return cfg, fmt.Errorf("parsing embedded senders: %w", err)
	}
	if err := json.Unmarshal([]byte(categoriesInput), &cfg.Categories); err != nil {
		return cfg, fmt.Errorf("parsing embedded categories: %w", err)
	}

	return cfg, cfg.Validate()
}
