package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Maphikza/commit-rewards/internal/api"
	"github.com/Maphikza/commit-rewards/internal/claim"
	"github.com/Maphikza/commit-rewards/internal/config"
	"github.com/Maphikza/commit-rewards/internal/logger"
	"github.com/Maphikza/commit-rewards/internal/wallet"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "claimd",
	Short: "Commit reward claim service",
	Long:  `Turns commit activity into claimable units and mints them as SPL tokens to the contributor's wallet.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(encryptAuthorityCmd)
	rootCmd.AddCommand(tokenCmd)
}

func initConfig() {
	err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	if path := viper.GetString("log_file"); path != "" {
		if err := logger.Init(path); err != nil {
			log.Printf("Error opening log file %s: %v", path, err)
		}
	}
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the claim API",
	Long:  `Serve the claim HTTP API and wallet relay, refreshing balances on the configured interval.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := newRuntime(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting service: %v\n", err)
			os.Exit(1)
		}
		defer rt.Close()

		jwtKey, err := api.EnsureJWTKey(rt.settings.JWTKeysDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing JWT key: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scheduler, err := claim.StartScheduler(rt.service, rt.settings.RefreshInterval)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting refresh scheduler: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := scheduler.Stop(); err != nil {
				log.Printf("Error stopping scheduler: %v", err)
			}
		}()

		relay := wallet.NewRelay(rt.settings.AllowedOrigin)
		server := api.NewAPI(rt.service, relay, rt.settings.AllowedOrigin, jwtKey)
		if err := server.Serve(ctx, rt.settings.APIPort); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	},
}
