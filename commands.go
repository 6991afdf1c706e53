package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/mcpserver"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create any missing tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Open applies the schema.
			data, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer data.DB().Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the board tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol; logs go to stderr.
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			mcpserver.Version = Version
			return mcpserver.Serve(mcpserver.Deps{
				Data:      a.data,
				Boards:    a.boards,
				Assistant: a.assistant,
				Index:     a.index,
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <board-id>",
		Short: "Write a board snapshot as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer data.DB().Close()

			snapshot, err := data.LoadBoard(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load board: %w", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			return writeSnapshot(w, snapshot, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json, yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func writeSnapshot(w io.Writer, snapshot *database.KanbanData, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	case "yaml", "yml":
		// Round trip through JSON so YAML keys match the API's field names.
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q (want json or yaml)", format)
}

func reindexCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reindex [board-id...]",
		Short: "Rebuild the semantic search index of boards",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("name at least one board or pass --all")
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if !a.index.Enabled() {
				return fmt.Errorf("semantic search is not configured; set BEGTASK_AI_API_KEY")
			}

			boardIDs := args
			if all {
				boardIDs, err = allBoardIDs(cmd.Context(), a.data)
				if err != nil {
					return err
				}
			}
			for _, id := range boardIDs {
				n, err := a.index.Reindex(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("failed to reindex board %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d task(s) indexed\n", id, n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "reindex every board")
	return cmd
}

// allBoardIDs lists every board through the users that own them.
func allBoardIDs(ctx context.Context, data *database.DataService) ([]string, error) {
	users, err := data.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var ids []string
	for _, u := range users {
		boards, err := data.ListBoards(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		for _, b := range boards {
			if !seen[b.ID] {
				seen[b.ID] = true
				ids = append(ids, b.ID)
			}
		}
	}
	return ids, nil
}

func promoteCmd() *cobra.Command {
	var demote bool
	cmd := &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant the admin role to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer data.DB().Close()

			user, err := data.GetUserByEmail(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to find user %s: %w", args[0], err)
			}
			role := database.RoleAdmin
			if demote {
				role = database.RoleUser
			}
			if err := data.SetUserStatus(cmd.Context(), user.ID, true, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Email, role)
			return nil
		},
	}
	cmd.Flags().BoolVar(&demote, "demote", false, "revoke the admin role instead")
	return cmd
}
