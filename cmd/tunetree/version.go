package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tunetree/tunetree"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tunetree",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tunetree version %s\n", strings.TrimSpace(tunetree.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
