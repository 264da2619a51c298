package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/vaultkeeper/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Версия vaultkeeper",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vaultkeeper %s\n", config.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
