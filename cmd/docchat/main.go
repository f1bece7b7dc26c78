package main

import (
	"errors"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor     bool
	debugLogs   bool
	sessionFlag string
	baseURLFlag string
)

// errReported marks a failure the command already printed.
var errReported = errors.New("failed")

var rootCmd = &cobra.Command{
	Use:           "docchat",
	Short:         "Chat with an assistant grounded in your documents",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session id to reuse (default: the stored one)")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "backend URL (default: derived from api.origin)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "enable debug logging")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			printError("%v", err)
		}
		os.Exit(1)
	}
}
