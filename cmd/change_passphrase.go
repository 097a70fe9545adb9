package cmd

import (
	"fmt"

	"github.com/bmlock/bmlock/internal/crypto"
	"github.com/spf13/cobra"
)

var changePassphraseCmd = &cobra.Command{
	Use:   "change-passphrase <folder>",
	Short: "Change a folder's passphrase",
	Long: `Change the passphrase of a protected folder by rewrapping its private key.
Bookmarks are not re-encrypted and the lock state is unchanged.`,
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

		current, err := readPassphrase("Enter current passphrase: ")
		if err != nil {
			return err
		}
		defer crypto.Zeroize(current)

		next, err := readNewPassphrase("Enter new passphrase: ")
		if err != nil {
			return err
		}
		defer crypto.Zeroize(next)

		if err := mgr.ChangePassphrase(ctx, f.ID, current, next); err != nil {
			return err
		}
		fmt.Printf("Passphrase changed for folder '%s'\n", f.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changePassphraseCmd)
}
