package transaction

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
)

// ErrForeignDestination is returned when the derived address holds an account the
// token program does not own.
var ErrForeignDestination = errors.New("destination address is not a token account")

// DestinationAccount is the associated token account that receives minted units.
type DestinationAccount struct {
	Owner   solana.PublicKey
	Mint    solana.PublicKey
	Address solana.PublicKey
	Exists  bool
}

// DeriveDestination computes the associated token account address for owner and mint.
// The network derives the same address independently.
func DeriveDestination(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated token address: %w", err)
	}
	return address, nil
}

// Resolve derives the destination account and checks whether it exists.
// A failed lookup is returned as NetworkUnavailable and never reported as a missing account.
func Resolve(ctx context.Context, network Network, owner, mint solana.PublicKey) (DestinationAccount, error) {
	address, err := DeriveDestination(owner, mint)
	if err != nil {
		return DestinationAccount{}, NewClaimError(KindUnclassified, err)
	}

	dest := DestinationAccount{
		Owner:   owner,
		Mint:    mint,
		Address: address,
	}

	info, err := network.GetAccountInfo(ctx, address)
	if err != nil {
		return DestinationAccount{}, networkFailure(err)
	}

	dest.Exists = info != nil
	if dest.Exists && !info.Owner.Equals(solana.TokenProgramID) {
		return DestinationAccount{}, NewClaimError(KindUnclassified,
			fmt.Errorf("%w: %s is owned by %s", ErrForeignDestination, address, info.Owner))
	}
	if !dest.Exists {
		log.Printf("Associated token account %s not found, it will be created in the claim transaction", address)
	}
	return dest, nil
}
