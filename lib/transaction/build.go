package transaction

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when Build is called with a non-positive or unrepresentable amount.
// Callers check the claimable balance before building.
var ErrInvalidAmount = errors.New("claim amount must be positive and fit in a u64 after scaling")

type StepKind string

const (
	StepCreateAccount StepKind = "create_account"
	StepMintTo        StepKind = "mint_to"
)

// Step is one instruction of a claim transaction.
type Step struct {
	Kind        StepKind
	Amount      uint64
	Instruction solana.Instruction
}

// ClaimTransaction is an unsigned claim, ready to be bound to an anchor and signed.
type ClaimTransaction struct {
	Steps       []Step
	FeePayer    solana.PublicKey
	Authority   solana.PublicKey
	Destination DestinationAccount
	Units       int64
	BaseUnits   uint64

	// Set by the orchestrator.
	Anchor Anchor
	Tx     *solana.Transaction
	state  State
}

// Instructions returns the ledger instructions in order.
func (ct *ClaimTransaction) Instructions() []solana.Instruction {
	out := make([]solana.Instruction, 0, len(ct.Steps))
	for _, step := range ct.Steps {
		out = append(out, step.Instruction)
	}
	return out
}

// CreatesAccount reports whether the transaction creates the destination account.
func (ct *ClaimTransaction) CreatesAccount() bool {
	for _, step := range ct.Steps {
		if step.Kind == StepCreateAccount {
			return true
		}
	}
	return false
}

// State is the orchestrator state the transaction has reached.
func (ct *ClaimTransaction) State() State {
	return ct.state
}

// Builder assembles claim transactions for a mint with fixed decimals.
type Builder struct {
	Decimals uint8
}

func NewBuilder(decimals uint8) *Builder {
	return &Builder{Decimals: decimals}
}

// ScaleAmount converts whole token units to base units (units * 10^decimals).
func ScaleAmount(units int64, decimals uint8) (uint64, error) {
	if units <= 0 {
		return 0, ErrInvalidAmount
	}
	scaled := decimal.NewFromInt(units).Shift(int32(decimals))
	limit := decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)
	if scaled.GreaterThan(limit) {
		return 0, fmt.Errorf("%w: %s base units", ErrInvalidAmount, scaled.String())
	}
	return scaled.BigInt().Uint64(), nil
}

// Build assembles the claim instructions. When the destination account is missing its
// creation comes first and is funded by the payer. No signatures are attached.
func (b *Builder) Build(dest DestinationAccount, amountUnits int64, authority, payer solana.PublicKey) (*ClaimTransaction, error) {
	baseUnits, err := ScaleAmount(amountUnits, b.Decimals)
	if err != nil {
		return nil, err
	}

	ct := &ClaimTransaction{
		FeePayer:    payer,
		Authority:   authority,
		Destination: dest,
		Units:       amountUnits,
		BaseUnits:   baseUnits,
		state:       StateBuilt,
	}

	if !dest.Exists {
		create := associatedtokenaccount.NewCreateInstruction(payer, dest.Owner, dest.Mint).Build()
		ct.Steps = append(ct.Steps, Step{Kind: StepCreateAccount, Instruction: create})
	}

	mintTo, err := token.NewMintToInstruction(baseUnits, dest.Mint, dest.Address, authority, nil).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build mint instruction: %w", err)
	}
	ct.Steps = append(ct.Steps, Step{Kind: StepMintTo, Amount: baseUnits, Instruction: mintTo})

	return ct, nil
}
