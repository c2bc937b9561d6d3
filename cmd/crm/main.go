package main

import (
	"context"
	"fmt"
	"os"

	"github.com/boddenberg/whop-crm-go/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v *viper.Viper

var rootCmd = &cobra.Command{
	Use:   "crm",
	Short: "Member CRM for Whop communities",
	Long: `crm serves the member CRM API: member sync, webhooks, segments,
automations, the prospect pipeline and AI-assisted insights.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(func() {
		// --- Load .env file (for local development) ---
		if err := config.LoadDotEnv(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	})

	v = config.NewViper()

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level"))

	serveCmd.Flags().Int("port", 8080, "HTTP listen port")
	_ = v.BindPFlag("PORT", serveCmd.Flags().Lookup("port"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(rescoreCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
