package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"identrisk/internal/fraud/engine"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect risk rules",
	}

	var path string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective rules as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rules := engine.DefaultRules()
			if path != "" {
				loaded, err := engine.LoadRules(path)
				if err != nil {
					return err
				}
				rules = loaded
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(rules)
		},
	}
	show.Flags().StringVar(&path, "rules", "", "YAML rules file layered over the defaults")

	validate := &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := engine.LoadRules(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (weights sum %.2f)\n", args[0], rules.Weights.Sum())
			return nil
		},
	}

	cmd.AddCommand(show, validate)
	return cmd
}
