package wallet

import (
	"context"
	"fmt"
	"log"

	"github.com/Maphikza/commit-rewards/lib/transaction"
	"github.com/gagliardetto/solana-go"
)

// ErrUserRejected is the rejection every signing capability reports.
var ErrUserRejected = transaction.ErrUserRejected

// Approver is asked before the wallet signs. Returning false rejects the transaction.
type Approver func(ctx context.Context, tx *solana.Transaction) (bool, error)

// KeypairWallet signs as the fee payer with a locally held owner key.
type KeypairWallet struct {
	key     solana.PrivateKey
	approve Approver
}

func NewKeypairWallet(key solana.PrivateKey, approve Approver) *KeypairWallet {
	return &KeypairWallet{key: key, approve: approve}
}

// LoadKeypairWallet reads the owner key from a Solana keygen JSON file.
func LoadKeypairWallet(path string, approve Approver) (*KeypairWallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner keyfile: %w", err)
	}
	return NewKeypairWallet(key, approve), nil
}

func (w *KeypairWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

func (w *KeypairWallet) SignAndSend(ctx context.Context, tx *solana.Transaction, network transaction.Network) (solana.Signature, error) {
	if w.approve != nil {
		ok, err := w.approve(ctx, tx)
		if err != nil {
			return solana.Signature{}, err
		}
		if !ok {
			log.Println("Claim transaction declined")
			return solana.Signature{}, ErrUserRejected
		}
	}

	owner := w.key.PublicKey()
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(owner) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign as fee payer: %w", err)
	}

	if !transaction.FullySigned(tx) {
		return solana.Signature{}, fmt.Errorf("transaction is missing required signatures, refusing to submit")
	}

	return network.SendTransaction(ctx, tx)
}
