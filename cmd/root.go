package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "payments-bot",
	Short: "M-Pesa payments Telegram bot",
	Long:  "A Telegram bot that gates access on channel membership and collects M-Pesa STK push payments, with callback handling and ledger maintenance jobs.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
