package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ConfigFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "checkmate",
		Short: "Checkmate duel lobby and matchmaking server",
		Run:   ServerCommand,
	}
	rootCmd.PersistentFlags().StringVarP(&ConfigFlag, "config", "c", ".", "Path to the directory containing config.yaml")

	accountGMCmd.Flags().BoolVar(&RevokeFlag, "revoke", false, "Revoke GM instead of granting it")
	accountBanCmd.Flags().BoolVar(&RevokeFlag, "lift", false, "Lift the ban instead of banning")
	accountListCmd.Flags().IntVarP(&LimitFlag, "limit", "n", 20, "Number of accounts to print")

	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountGMCmd)
	accountCmd.AddCommand(accountBanCmd)
	accountCmd.AddCommand(accountListCmd)
	rootCmd.AddCommand(accountCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
