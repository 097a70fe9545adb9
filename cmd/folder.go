package cmd

import (
	"fmt"

	"github.com/bmlock/bmlock/internal/bookmarks"
	"github.com/spf13/cobra"
)

var folderParent string

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage bookmark folders",
}

var folderCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a bookmark folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bs, err := openBookmarks()
		if err != nil {
			return err
		}

		parentID := bookmarks.RootID
		if folderParent != "" {
			parent, err := resolveFolder(ctx, bs, folderParent)
			if err != nil {
				return err
			}
			parentID = parent.ID
		}

		f := bookmarks.NewFolder(parentID, args[0])
		if err := bs.Create(ctx, f); err != nil {
			return fmt.Errorf("failed to create folder: %w", err)
		}
		fmt.Printf("Folder '%s' created with ID: %s\n", f.Title, f.ID)
		return nil
	},
}

func init() {
	folderCreateCmd.Flags().StringVar(&folderParent, "parent", "", "parent folder id or title (default: top level)")
	folderCmd.AddCommand(folderCreateCmd)
	rootCmd.AddCommand(folderCmd)
}
