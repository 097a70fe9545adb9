package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	kerrors "github.com/bmlock/bmlock/internal/errors"
	"github.com/bmlock/bmlock/internal/folder"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [folder]",
	Short: "Show the lock state of folders",
	Long: `Show whether a folder is unmanaged, unlocked or locked. Without an argument,
every protected folder is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ss, err := openSettings(ctx)
		if err != nil {
			return err
		}
		bs, err := openBookmarks()
		if err != nil {
			return err
		}
		mgr := folder.NewManager(ss, bs, folder.WithLogger(log))

		var ids []string
		if len(args) > 0 {
			f, err := resolveFolder(ctx, bs, args[0])
			if err != nil {
				return err
			}
			ids = []string{f.ID}
		} else {
			ids, err = ss.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list protected folders: %w", err)
			}
			if len(ids) == 0 {
				fmt.Println("No protected folders")
				return nil
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATE")
		for _, id := range ids {
			title := "-"
			item, err := bs.Get(ctx, id)
			switch {
			case err == nil:
				title = item.Title
			case errors.Is(err, kerrors.ErrNotFound):
				log.Warnf("Settings exist for folder %s, which is not in the bookmark database", id)
			default:
				return err
			}

			state, err := mgr.State(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", id, title, state)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
