package transaction

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// AccountMetadata is the part of an on-chain account the claim flow cares about.
type AccountMetadata struct {
	Owner    solana.PublicKey
	Lamports uint64
}

// Anchor is the recent blockhash a transaction is bound to.
type Anchor struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// Confirmation is the observed status of a submitted signature.
type Confirmation int

const (
	ConfirmationPending Confirmation = iota
	ConfirmationConfirmed
	ConfirmationFailed
)

// Status is returned by Network.Confirm. Err carries the on-chain error when the
// transaction landed but failed.
type Status struct {
	Confirmation Confirmation
	Slot         uint64
	Err          error
}

// Network is the narrow view of the ledger used by the claim flow.
// GetAccountInfo returns (nil, nil) when the account does not exist.
type Network interface {
	GetAccountInfo(ctx context.Context, address solana.PublicKey) (*AccountMetadata, error)
	GetRecentAnchor(ctx context.Context) (Anchor, error)
	Confirm(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) (Status, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// RPCNetwork implements Network on top of a JSON-RPC endpoint.
type RPCNetwork struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
}

func NewRPCNetwork(endpoint string, commitment rpc.CommitmentType) *RPCNetwork {
	return &RPCNetwork{
		client:     rpc.New(endpoint),
		commitment: commitment,
	}
}

func (n *RPCNetwork) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*AccountMetadata, error) {
	out, err := n.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: n.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account info for %s: %w", address, err)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}

	return &AccountMetadata{
		Owner:    out.Value.Owner,
		Lamports: out.Value.Lamports,
	}, nil
}

func (n *RPCNetwork) GetRecentAnchor(ctx context.Context) (Anchor, error) {
	out, err := n.client.GetLatestBlockhash(ctx, n.commitment)
	if err != nil {
		return Anchor{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return Anchor{}, fmt.Errorf("latest blockhash response was empty")
	}

	return Anchor{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

func (n *RPCNetwork) Confirm(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) (Status, error) {
	out, err := n.client.GetSignatureStatuses(ctx, true, signature)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return Status{Confirmation: ConfirmationPending}, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return Status{
			Confirmation: ConfirmationFailed,
			Slot:         status.Slot,
			Err:          fmt.Errorf("transaction failed on chain: %v", status.Err),
		}, nil
	}

	if reaches(status.ConfirmationStatus, commitment) {
		return Status{Confirmation: ConfirmationConfirmed, Slot: status.Slot}, nil
	}
	return Status{Confirmation: ConfirmationPending, Slot: status.Slot}, nil
}

func (n *RPCNetwork) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := n.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: n.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	log.Printf("Transaction sent. Signature: %s", sig)
	return sig, nil
}

// reaches reports whether an observed confirmation status satisfies the wanted commitment.
func reaches(observed rpc.ConfirmationStatusType, wanted rpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case "processed":
			return 1
		case "confirmed":
			return 2
		case "finalized":
			return 3
		}
		return 0
	}
	have := rank(string(observed))
	return have > 0 && have >= rank(string(wanted))
}
