package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock <folder>",
	Short: "Encrypt a protected folder",
	Long: `Encrypt every plaintext bookmark in a protected folder with the folder's
public key. No passphrase is needed to lock.`,
	Args: cobra.ExactArgs(1),
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

		if err := mgr.Lock(ctx, f.ID); err != nil {
			return err
		}
		fmt.Printf("Folder '%s' locked successfully\n", f.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lockCmd)
}
