package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// fakeNetwork is an in-memory ledger view.
type fakeNetwork struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]bool
	// accountOwner overrides the token program as owner of existing accounts.
	accountOwner solana.PublicKey
	lookupErr    error
	anchorErr    error
	confirmFn    func(call int) (Status, error)
	calls        int
	sent         []*solana.Transaction
	sendErr      error
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{accounts: make(map[solana.PublicKey]bool)}
}

func (n *fakeNetwork) GetAccountInfo(_ context.Context, address solana.PublicKey) (*AccountMetadata, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lookupErr != nil {
		return nil, n.lookupErr
	}
	if !n.accounts[address] {
		return nil, nil
	}
	owner := solana.TokenProgramID
	if !n.accountOwner.IsZero() {
		owner = n.accountOwner
	}
	return &AccountMetadata{Owner: owner, Lamports: 2039280}, nil
}

func (n *fakeNetwork) GetRecentAnchor(_ context.Context) (Anchor, error) {
	if n.anchorErr != nil {
		return Anchor{}, n.anchorErr
	}
	return Anchor{Blockhash: solana.Hash{7, 7, 7}, LastValidBlockHeight: 100}, nil
}

func (n *fakeNetwork) Confirm(_ context.Context, _ solana.Signature, _ rpc.CommitmentType) (Status, error) {
	n.mu.Lock()
	n.calls++
	call := n.calls
	fn := n.confirmFn
	n.mu.Unlock()
	if fn == nil {
		return Status{Confirmation: ConfirmationConfirmed, Slot: 42}, nil
	}
	return fn(call)
}

func (n *fakeNetwork) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return solana.Signature{}, n.sendErr
	}
	if !FullySigned(tx) {
		return solana.Signature{}, errors.New("missing signatures")
	}
	n.sent = append(n.sent, tx)
	return tx.Signatures[0], nil
}

func (n *fakeNetwork) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// ownerSigner signs as fee payer with a local key, or fails with err.
type ownerSigner struct {
	key solana.PrivateKey
	err error
}

func (s *ownerSigner) SignAndSend(ctx context.Context, tx *solana.Transaction, network Network) (solana.Signature, error) {
	if s.err != nil {
		return solana.Signature{}, s.err
	}
	owner := s.key.PublicKey()
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(owner) {
			return &s.key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, err
	}
	return network.SendTransaction(ctx, tx)
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}
