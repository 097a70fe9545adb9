package cmd

import (
	"fmt"

	"github.com/bmlock/bmlock/internal/crypto"
	"github.com/spf13/cobra"
)

var setPassphraseCmd = &cobra.Command{
	Use:   "set-passphrase <folder>",
	Short: "Protect a folder with a passphrase and lock it",
	Long: `Generate a key pair for the folder, store its private key wrapped under the
passphrase, and encrypt every bookmark directly inside the folder.

Sub-folders are not affected; protect them separately.`,
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

		pw, err := readNewPassphrase("Enter new passphrase: ")
		if err != nil {
			return err
		}
		defer crypto.Zeroize(pw)

		if err := mgr.SetPassphrase(ctx, f.ID, pw); err != nil {
			return err
		}
		fmt.Printf("Folder '%s' is now locked\n", f.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setPassphraseCmd)
}
