package cmd

import (
	"fmt"

	"github.com/bmlock/bmlock/internal/crypto"
	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock <folder>",
	Short: "Decrypt a protected folder",
	Long: `Unlock a protected folder by providing its passphrase. The bookmarks stay
decrypted until the folder is locked again.`,
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

		pw, err := readPassphrase("Enter passphrase: ")
		if err != nil {
			return err
		}
		defer crypto.Zeroize(pw)

		if err := mgr.Unlock(ctx, f.ID, pw); err != nil {
			return err
		}
		fmt.Printf("Folder '%s' unlocked successfully\n", f.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}
