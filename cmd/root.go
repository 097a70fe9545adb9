package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/bmlock/bmlock/internal/bookmarks"
	"github.com/bmlock/bmlock/internal/config"
	kerrors "github.com/bmlock/bmlock/internal/errors"
	logger "github.com/bmlock/bmlock/internal/logging"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	debug      bool
	configPath string

	cfg *config.Config
	log logger.Logger

	// bookmarkStore is opened on first use and closed after the command runs.
	bookmarkStore *bookmarks.BoltStore
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bmlock",
	Short: "Passphrase-locked bookmark folders",
	Long: `bmlock encrypts the titles and URLs of the bookmarks in a folder so they can
only be read after unlocking the folder with its passphrase.

Each managed folder has its own RSA key pair. The private key is stored wrapped
under a key derived from the passphrase; bookmarks are sealed with AES-GCM under
a message key that travels, RSA-wrapped, inside every encrypted URL.

Examples:
  # Create a folder and add a bookmark
  bmlock folder create Private
  bmlock bookmark add Private "Cat" http://a

  # Protect the folder, then read it again
  bmlock set-passphrase Private
  bmlock unlock Private
  bmlock lock Private`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log = logger.Logger{
			Verbose: verbose,
			Debug:   debug,
		}
		log.Debugf("Initializing bmlock with verbose=%t, debug=%t", verbose, debug)

		path := configPath
		if path == "" {
			path = config.DefaultConfig().ConfigPath
		}
		loaded, err := config.LoadConfigFrom(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		log.Debugf("Loaded config from %s (settings backend %s)", cfg.ConfigPath, cfg.SettingsBackend)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeBookmarks()
	},
}

// Execute runs the command tree. Interrupts cancel the command context, which
// transitions honor until they start rewriting bookmarks.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if cerr := closeBookmarks(); err == nil {
		err = cerr
	}
	return userError(err)
}

// userError collapses every passphrase failure into one message.
func userError(err error) error {
	switch {
	case err == nil:
		return nil
	case kerrors.IsWrongPassword(err):
		log.Debugf("passphrase failure: %v", err)
		return errors.New("wrong password")
	case errors.Is(err, context.Canceled):
		return errors.New("interrupted")
	default:
		return err
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.bmlock/config.json)")
}
