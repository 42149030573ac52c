package cmd

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/PyGeek03/flox/api"
)

var getSelect string

var getCmd = &cobra.Command{
	Use:   "get [db|fingerprint] [attrpath]",
	Short: "Resolve an attribute path to its package row",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }() // read-only

		path, err := api.ParseAttrPath(args[1])
		if err != nil {
			return err
		}
		row, err := db.ResolvePath(path)
		if err != nil {
			return err
		}

		if getSelect == "" {
			fmt.Println(oj.JSON(row, 2))
			return nil
		}

		// JSONPath selection runs over the generic form of the row.
		expr, err := jp.ParseString(getSelect)
		if err != nil {
			return fmt.Errorf("invalid jsonpath %q: %w", getSelect, err)
		}
		doc, err := oj.ParseString(oj.JSON(row))
		if err != nil {
			return err
		}
		for _, result := range expr.Get(doc) {
			fmt.Println(oj.JSON(result, 2))
		}
		return nil
	},
}

func init() {
	getCmd.Flags().StringVar(&getSelect, "select", "", "JSONPath filter applied to the package row")
	rootCmd.AddCommand(getCmd)
}
