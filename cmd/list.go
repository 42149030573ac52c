package cmd

import (
	"fmt"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/PyGeek03/flox/api"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list [db|fingerprint] [prefix]",
	Short: "List packages under an attribute path prefix",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }() // read-only

		var prefix api.AttrPath
		if len(args) == 2 {
			if prefix, err = api.ParseAttrPath(args[1]); err != nil {
				return err
			}
		}
		rows, err := db.ListPackages(prefix)
		if err != nil {
			return err
		}
		if listJSON {
			fmt.Println(oj.JSON(rows, 2))
			return nil
		}
		for _, row := range rows {
			fmt.Printf("%s\t%s\n", row.AttrPath, row.Version)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "emit rows as JSON")
	rootCmd.AddCommand(listCmd)
}
