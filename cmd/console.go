package cmd

import (
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Terminal consoles over projected views",
	Long:  "Interactive terminal views of the target database. Requires a TTY.",
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
