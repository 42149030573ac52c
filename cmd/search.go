package cmd

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
)

var searchJSON bool

var searchCmd = &cobra.Command{
	Use:   "search [db|fingerprint] [query...]",
	Short: "Search packages by name and description tokens",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }() // read-only

		rows, err := db.Search(strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		if searchJSON {
			fmt.Println(oj.JSON(rows, 2))
			return nil
		}
		for _, row := range rows {
			desc := ""
			if row.Description != nil {
				desc = *row.Description
			}
			fmt.Printf("%s\t%s\t%s\n", row.AttrPath, row.Version, desc)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "emit rows as JSON")
	rootCmd.AddCommand(searchCmd)
}
