package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bmlock/bmlock/internal/bookmarks"
	"github.com/spf13/cobra"
)

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark",
	Short: "Manage bookmarks",
}

var bookmarkAddCmd = &cobra.Command{
	Use:   "add <folder> <title> <url>",
	Short: "Add a bookmark to a folder",
	Long: `Add a bookmark to a folder. A bookmark added to a locked folder is
encrypted immediately.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mgr, bs, err := newManager(ctx)
		if err != nil {
			return err
		}
		f, err := resolveFolder(ctx, bs, args[0])
		if err != nil {
			return err
		}

		b := bookmarks.NewBookmark(f.ID, args[1], args[2])
		if err := bs.Create(ctx, b); err != nil {
			return fmt.Errorf("failed to add bookmark: %w", err)
		}
		if err := mgr.HandleCreated(ctx, b); err != nil {
			return fmt.Errorf("bookmark %s was added but could not be encrypted: %w", b.ID, err)
		}
		fmt.Printf("Bookmark '%s' added with ID: %s\n", b.Title, b.ID)
		return nil
	},
}

var bookmarkListCmd = &cobra.Command{
	Use:   "list [folder]",
	Short: "List the contents of a folder",
	Long: `List the direct children of a folder, or the top-level folders when no
folder is given. Bookmarks in a locked folder are shown as stored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bs, err := openBookmarks()
		if err != nil {
			return err
		}

		parentID := bookmarks.RootID
		if len(args) > 0 {
			f, err := resolveFolder(ctx, bs, args[0])
			if err != nil {
				return err
			}
			parentID = f.ID
		}

		items, err := bs.ListChildren(ctx, parentID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No items found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tTITLE\tURL\tUPDATED")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				item.ID,
				item.Type,
				item.Title,
				item.URL,
				item.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

func init() {
	bookmarkCmd.AddCommand(bookmarkAddCmd)
	bookmarkCmd.AddCommand(bookmarkListCmd)
	rootCmd.AddCommand(bookmarkCmd)
}
