package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Maphikza/commit-rewards/internal/activity"
	"github.com/Maphikza/commit-rewards/internal/api"
	"github.com/Maphikza/commit-rewards/internal/config"
	"github.com/Maphikza/commit-rewards/internal/wallet"
	"github.com/Maphikza/commit-rewards/lib/transaction"
	"github.com/atotto/clipboard"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"
)

var (
	eventsFile   string
	ownerKeyfile string
	assumeYes    bool
	copySig      bool
	tokenTTL     time.Duration
)

func init() {
	aggregateCmd.Flags().StringVar(&eventsFile, "events", "", "JSON file of activity events")
	aggregateCmd.MarkFlagRequired("events")

	claimCmd.Flags().StringVar(&ownerKeyfile, "owner-keyfile", "", "Solana keygen file of the receiving wallet")
	claimCmd.Flags().StringVar(&eventsFile, "events", "", "JSON file of activity events, overrides the configured feed")
	claimCmd.Flags().BoolVar(&assumeYes, "yes", false, "approve the transaction without prompting")
	claimCmd.Flags().BoolVar(&copySig, "copy", false, "copy the transaction signature to the clipboard")
	claimCmd.MarkFlagRequired("owner-keyfile")

	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Count claimable units in an events file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		events, err := activity.FileFeed{Path: eventsFile}.Events(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading events: %v\n", err)
			os.Exit(1)
		}

		units, buckets := activity.Aggregate(events)
		result := struct {
			Units   int64                  `json:"units"`
			Buckets []activity.DailyBucket `json:"buckets"`
		}{
			Units:   units,
			Buckets: buckets,
		}
		json.NewEncoder(os.Stdout).Encode(result)
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim all claimable units to a local wallet",
	Long: `Refresh the wallet's activity, then mint its claimable units to the wallet's
associated token account. The wallet key signs as fee payer.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		owner, err := wallet.LoadKeypairWallet(ownerKeyfile, promptApproval(assumeYes))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading wallet: %v\n", err)
			os.Exit(1)
		}

		rt, err := newRuntime(fileFeeds(eventsFile))
		if err != nil {
			printClaimError(err)
			os.Exit(1)
		}
		defer rt.Close()

		ctx := context.Background()
		session := owner.PublicKey().String()
		if _, err := rt.service.Open(session, owner.PublicKey()); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening session: %v\n", err)
			os.Exit(1)
		}
		if _, err := rt.service.Refresh(ctx, session); err != nil {
			fmt.Fprintf(os.Stderr, "Error refreshing balance: %v\n", err)
			os.Exit(1)
		}

		receipt, err := rt.service.Claim(ctx, session, owner)
		if receipt != nil {
			json.NewEncoder(os.Stdout).Encode(receipt)
		}
		if err != nil {
			printClaimError(err)
			os.Exit(1)
		}

		if copySig && receipt.Signature != "" {
			if err := clipboard.WriteAll(receipt.Signature); err != nil {
				log.Printf("Failed to copy signature to clipboard: %v", err)
			} else {
				fmt.Fprintln(os.Stderr, "Signature copied to clipboard")
			}
		}
	},
}

// promptApproval asks on the terminal before the owner key signs.
func promptApproval(assumeYes bool) wallet.Approver {
	return func(_ context.Context, tx *solana.Transaction) (bool, error) {
		if assumeYes {
			return true, nil
		}
		fmt.Fprintf(os.Stderr, "\nClaim transaction with %d instruction(s), fee payer %s\n",
			len(tx.Message.Instructions), tx.Message.AccountKeys[0])
		fmt.Fprint(os.Stderr, "Sign and submit? (y/N): ")

		reader := bufio.NewReader(os.Stdin)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return false, nil
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes", nil
	}
}

func printClaimError(err error) {
	cerr := transaction.AsClaimError(err)
	fmt.Fprintf(os.Stderr, "%s\n", cerr.Message())
	log.Printf("Claim error: %v", err)
}

var statusCmd = &cobra.Command{
	Use:   "status [signature]",
	Short: "Query the confirmation status of a claim transaction",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		signature, err := solana.SignatureFromBase58(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid signature: %v\n", err)
			os.Exit(1)
		}

		settings := config.Current()
		commitment := rpc.CommitmentType(settings.Commitment)
		network := transaction.NewRPCNetwork(settings.RPCEndpoint, commitment)

		status, err := network.Confirm(context.Background(), signature, commitment)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying status: %v\n", err)
			os.Exit(1)
		}

		result := struct {
			Signature string `json:"signature"`
			Status    string `json:"status"`
			Slot      uint64 `json:"slot,omitempty"`
			Error     string `json:"error,omitempty"`
		}{
			Signature: signature.String(),
			Slot:      status.Slot,
		}
		switch status.Confirmation {
		case transaction.ConfirmationConfirmed:
			result.Status = "confirmed"
		case transaction.ConfirmationFailed:
			result.Status = "failed"
			if status.Err != nil {
				result.Error = status.Err.Error()
			}
		default:
			result.Status = "pending"
		}
		json.NewEncoder(os.Stdout).Encode(result)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [attempt-id]",
	Short: "Re-check a claim whose confirmation timed out",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := newRuntime(nil)
		if err != nil {
			printClaimError(err)
			os.Exit(1)
		}
		defer rt.Close()

		receipt, err := rt.service.Reconcile(context.Background(), args[0])
		if receipt != nil {
			json.NewEncoder(os.Stdout).Encode(receipt)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reconciling claim: %v\n", err)
			os.Exit(1)
		}
	},
}

var encryptAuthorityCmd = &cobra.Command{
	Use:   "encrypt-authority [keygen-file] [output-file] [passphrase]",
	Short: "Encrypt the mint authority keyfile",
	Long: `Encrypt a Solana keygen file with a passphrase. Point mint_authority_keyfile at the
output and set mint_authority_passphrase to load it.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		pub, err := wallet.EncryptKeyfile(args[0], args[1], args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encrypting keyfile: %v\n", err)
			os.Exit(1)
		}

		result := struct {
			Authority string `json:"authority"`
			Output    string `json:"output"`
		}{
			Authority: pub.String(),
			Output:    args[1],
		}
		json.NewEncoder(os.Stdout).Encode(result)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token [user-id] [wallet]",
	Short: "Issue an API token for a user and wallet",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := solana.PublicKeyFromBase58(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid wallet address: %v\n", err)
			os.Exit(1)
		}

		key, err := api.EnsureJWTKey(config.Current().JWTKeysDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading JWT key: %v\n", err)
			os.Exit(1)
		}

		token, err := api.GenerateJWT(key, args[0], args[1], tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
			os.Exit(1)
		}

		result := struct {
			Token string `json:"token"`
		}{
			Token: token,
		}
		json.NewEncoder(os.Stdout).Encode(result)
	},
}
