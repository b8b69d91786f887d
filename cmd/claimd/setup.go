package main

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/Maphikza/commit-rewards/internal/activity"
	"github.com/Maphikza/commit-rewards/internal/claim"
	"github.com/Maphikza/commit-rewards/internal/config"
	claimstatedb "github.com/Maphikza/commit-rewards/internal/database"
	"github.com/Maphikza/commit-rewards/internal/wallet"
	"github.com/Maphikza/commit-rewards/lib/transaction"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// runtime bundles what every claim-capable command needs.
type runtime struct {
	settings config.Settings
	store    *claimstatedb.Store
	network  *transaction.RPCNetwork
	service  *claim.Service
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// newRuntime opens the store and network and builds the claim service. A missing
// mint authority is not an error here; claims report it as ConfigurationMissing.
func newRuntime(feeds claim.FeedFactory) (*runtime, error) {
	settings := config.Current()
	if err := settings.Validate(); err != nil {
		return nil, transaction.NewClaimError(transaction.KindConfigurationMissing, err)
	}

	mint, err := solana.PublicKeyFromBase58(settings.MintAddress)
	if err != nil {
		return nil, transaction.NewClaimError(transaction.KindConfigurationMissing, fmt.Errorf("invalid mint_address: %w", err))
	}

	authority, err := wallet.LoadAuthority(wallet.AuthoritySource{
		Secret:     settings.MintAuthoritySecret,
		Keyfile:    settings.MintAuthorityKeyfile,
		Passphrase: settings.MintAuthorityPassphrase,
	})
	if err != nil {
		if !errors.Is(err, wallet.ErrNoAuthority) {
			return nil, transaction.NewClaimError(transaction.KindConfigurationMissing, err)
		}
		log.Println("Mint authority not configured, claims will be refused")
		authority = nil
	}

	store, err := claimstatedb.Open(settings.DBDriver, settings.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	commitment := rpc.CommitmentType(settings.Commitment)
	network := transaction.NewRPCNetwork(settings.RPCEndpoint, commitment)

	if feeds == nil {
		feeds = configuredFeeds(settings)
	}

	service := claim.NewService(store, network, claim.Options{
		Mint:           mint,
		Decimals:       settings.MintDecimals,
		Authority:      authority,
		Commitment:     commitment,
		ConfirmTimeout: settings.ConfirmTimeout,
		PollInterval:   settings.ConfirmPollInterval,
		Feeds:          feeds,
	})

	return &runtime{settings: settings, store: store, network: network, service: service}, nil
}

// configuredFeeds picks the activity source from the settings. The events file wins
// over GitHub; with neither, sessions have no activity.
func configuredFeeds(settings config.Settings) claim.FeedFactory {
	switch {
	case settings.EventsFile != "":
		return func(string) activity.Feed {
			return activity.FileFeed{Path: settings.EventsFile}
		}
	case len(settings.GitHubRepos) > 0:
		return func(session string) activity.Feed {
			user := settings.GitHubUser
			if user == "" {
				user = session
			}
			return activity.NewGitHubFeed(settings.GitHubToken, user, settings.GitHubRepos)
		}
	default:
		return nil
	}
}

func fileFeeds(path string) claim.FeedFactory {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	return func(string) activity.Feed {
		return activity.FileFeed{Path: path}
	}
}
