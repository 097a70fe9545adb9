package cmd

import (
	"fmt"

	"github.com/bmlock/bmlock/internal/crypto"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:     "remove-passphrase <folder>",
	Aliases: []string{"remove"},
	Short:   "Decrypt a folder and stop protecting it",
	Long: `Decrypt every bookmark in the folder and delete its key material. The
folder becomes an ordinary bookmark folder.`,
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

		if err := mgr.Delete(ctx, f.ID, pw); err != nil {
			return err
		}
		fmt.Printf("Folder '%s' is no longer protected\n", f.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
