package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PyGeek03/flox/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect scrape rules documents",
}

var rulesHashCmd = &cobra.Command{
	Use:   "hash [rules-file]",
	Short: "Print the canonical hash of a rules document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := rulesArg(args)
		if err != nil {
			return err
		}
		fmt.Println(tree.Hash())
		return nil
	},
}

var rulesPrintCmd = &cobra.Command{
	Use:   "print [rules-file]",
	Short: "Print the canonical form of a rules document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := rulesArg(args)
		if err != nil {
			return err
		}
		fmt.Println(tree.Canonical())
		return nil
	},
}

// rulesArg loads the named rules file, or the built-in defaults with no
// argument.
func rulesArg(args []string) (*rules.Node, error) {
	if len(args) == 0 {
		return rules.Default, nil
	}
	return rules.FromFile(args[0])
}

func init() {
	rulesCmd.AddCommand(rulesHashCmd)
	rulesCmd.AddCommand(rulesPrintCmd)
	rootCmd.AddCommand(rulesCmd)
}
