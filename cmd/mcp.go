package cmd

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/PyGeek03/flox/api"
	"github.com/PyGeek03/flox/internal/pkgdb"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp [db|fingerprint]",
	Short: "Serve read-only resolution and search tools over stdio (MCP)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }() // read-only

		s := server.NewMCPServer("pkgdb", "0.1.0", server.WithToolCapabilities(false))

		resolveTool := mcp.NewTool("resolve",
			mcp.WithDescription("Resolve an attribute path to its package row"),
			mcp.WithString("path", mcp.Required(), mcp.Description("dotted attribute path, e.g. legacyPackages.x86_64-linux.hello")),
		)
		s.AddTool(resolveTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			raw, err := req.RequireString("path")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return resolveResult(db, raw)
		})

		searchTool := mcp.NewTool("search",
			mcp.WithDescription("Search packages by name and description tokens"),
			mcp.WithString("query", mcp.Required(), mcp.Description("space-separated search terms")),
		)
		s.AddTool(searchTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			query, err := req.RequireString("query")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rows, err := db.Search(query)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(oj.JSON(rows, 2)), nil
		})

		if err := server.ServeStdio(s); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

func resolveResult(db *pkgdb.DB, raw string) (*mcp.CallToolResult, error) {
	path, err := api.ParseAttrPath(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	row, err := db.ResolvePath(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(oj.JSON(row, 2)), nil
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
