// Package cli provides the command-line interface of the service.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "facebot",
		Short: "Face recognition Telegram bot",
		Long: `facebot is a face recognition service fronted by a Telegram bot.

Admins enroll labelled face photos; the service encodes them through an
external recognizer, fits a voting classifier and answers photo messages
with the recognized people, their notes and reference images.`,
		Version: fmt.Sprintf("%s (%s)", Version, GitCommit),
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Path to the configuration file")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newBackupCmd())
	rootCmd.AddCommand(newRestoreCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
