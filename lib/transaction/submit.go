package transaction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type State string

const (
	StateBuilt           State = "BUILT"
	StateAuthoritySigned State = "AUTHORITY_SIGNED"
	StateSubmitted       State = "SUBMITTED"
	StateConfirmed       State = "CONFIRMED"
	StateFailed          State = "FAILED"
)

// ErrAlreadySubmitted is returned when a claim transaction is handed to Submit twice.
// A retry must rebuild the transaction so it gets a fresh anchor.
var ErrAlreadySubmitted = errors.New("claim transaction was already submitted, rebuild it before retrying")

// Signer is the user's signing capability. It adds the fee payer signature and submits
// the transaction, possibly after waiting for the user to approve it.
type Signer interface {
	SignAndSend(ctx context.Context, tx *solana.Transaction, network Network) (solana.Signature, error)
}

// Progress is emitted on every state transition.
type Progress struct {
	State     State
	Signature solana.Signature
	Kind      Kind
	At        time.Time
}

// Outcome is the terminal result of Submit.
type Outcome struct {
	State     State
	Signature solana.Signature
	Failure   *ClaimError
}

func (o Outcome) Confirmed() bool {
	return o.State == StateConfirmed
}

// Err returns the failure as an error, or nil when the claim was confirmed.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// Orchestrator drives a claim transaction from BUILT to CONFIRMED or FAILED.
// It never mutates claim balances.
type Orchestrator struct {
	Network      Network
	Commitment   rpc.CommitmentType
	Timeout      time.Duration
	PollInterval time.Duration
	Observe      func(Progress)
}

func NewOrchestrator(network Network, commitment rpc.CommitmentType, timeout, pollInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		Network:      network,
		Commitment:   commitment,
		Timeout:      timeout,
		PollInterval: pollInterval,
	}
}

// Submit anchors, signs with the authority, hands the transaction to the signer and
// waits for confirmation. The authority key is only used inside this call.
func (o *Orchestrator) Submit(ctx context.Context, ct *ClaimTransaction, authority solana.PrivateKey, signer Signer) Outcome {
	if ct.state != StateBuilt {
		// The earlier submission keeps its state.
		failure := NewClaimError(KindUnclassified, ErrAlreadySubmitted)
		log.Printf("Refusing to resubmit claim transaction in state %s", ct.state)
		return Outcome{State: StateFailed, Failure: failure}
	}
	if !authority.PublicKey().Equals(ct.Authority) {
		return o.fail(ct, solana.Signature{}, NewClaimError(KindConfigurationMissing,
			fmt.Errorf("authority key %s does not match transaction authority %s", authority.PublicKey(), ct.Authority)))
	}

	anchor, err := o.Network.GetRecentAnchor(ctx)
	if err != nil {
		return o.fail(ct, solana.Signature{}, networkFailure(err))
	}

	tx, err := solana.NewTransaction(ct.Instructions(), anchor.Blockhash, solana.TransactionPayer(ct.FeePayer))
	if err != nil {
		return o.fail(ct, solana.Signature{}, NewClaimError(KindUnclassified, fmt.Errorf("failed to compile transaction: %w", err)))
	}
	ct.Anchor = anchor
	ct.Tx = tx

	_, err = tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(ct.Authority) {
			return &authority
		}
		return nil
	})
	if err != nil {
		return o.fail(ct, solana.Signature{}, NewClaimError(KindUnclassified, fmt.Errorf("failed to sign with mint authority: %w", err)))
	}
	if !HasSignature(tx, ct.Authority) {
		return o.fail(ct, solana.Signature{}, NewClaimError(KindUnclassified, fmt.Errorf("mint authority %s is not a signer of the transaction", ct.Authority)))
	}
	o.transition(ct, StateAuthoritySigned, solana.Signature{})

	log.Printf("Sending claim of %d units to %s for user approval...", ct.Units, ct.Destination.Owner)
	signature, err := signer.SignAndSend(ctx, tx, o.Network)
	if err != nil {
		return o.fail(ct, solana.Signature{}, signingFailure(err))
	}
	o.transition(ct, StateSubmitted, signature)
	log.Printf("Claim transaction sent with signature: %s", signature)

	return o.waitForConfirmation(ctx, ct, signature)
}

func (o *Orchestrator) waitForConfirmation(ctx context.Context, ct *ClaimTransaction, signature solana.Signature) Outcome {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	interval := o.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		status, err := o.Network.Confirm(pollCtx, signature, o.Commitment)
		switch {
		case err != nil:
			lastErr = err
			log.Printf("Error polling confirmation for %s: %v", signature, err)
		case status.Confirmation == ConfirmationConfirmed:
			o.transition(ct, StateConfirmed, signature)
			log.Printf("Claim transaction %s confirmed", signature)
			return Outcome{State: StateConfirmed, Signature: signature}
		case status.Confirmation == ConfirmationFailed:
			return o.fail(ct, signature, NewClaimError(KindUnclassified, status.Err))
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				// The caller went away; the submission is out of our hands either way.
				return o.fail(ct, signature, NewClaimError(KindConfirmationTimeout, fmt.Errorf("%w: %v", ErrConfirmationTimeout, ctx.Err())))
			}
			if lastErr != nil {
				return o.fail(ct, signature, NewClaimError(KindConfirmationTimeout, fmt.Errorf("%w (last poll error: %v)", ErrConfirmationTimeout, lastErr)))
			}
			return o.fail(ct, signature, NewClaimError(KindConfirmationTimeout, ErrConfirmationTimeout))
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) transition(ct *ClaimTransaction, state State, signature solana.Signature) {
	ct.state = state
	if o.Observe != nil {
		o.Observe(Progress{State: state, Signature: signature, At: time.Now()})
	}
}

func (o *Orchestrator) fail(ct *ClaimTransaction, signature solana.Signature, failure *ClaimError) Outcome {
	ct.state = StateFailed
	log.Printf("Claim failed (%s): %v", failure.Kind, failure.Err)
	if o.Observe != nil {
		o.Observe(Progress{State: StateFailed, Signature: signature, Kind: failure.Kind, At: time.Now()})
	}
	return Outcome{State: StateFailed, Signature: signature, Failure: failure}
}

// signingFailure classifies an error from the signing capability. Cancelling the
// signing prompt counts as a rejection.
func signingFailure(err error) *ClaimError {
	if errors.Is(err, context.Canceled) {
		return NewClaimError(KindUserRejected, err)
	}
	return NewClaimError(Classify(err), err)
}

// HasSignature reports whether key is a required signer of tx and its signature slot is filled.
func HasSignature(tx *solana.Transaction, key solana.PublicKey) bool {
	required := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if !tx.Message.AccountKeys[i].Equals(key) {
			continue
		}
		return i < len(tx.Signatures) && tx.Signatures[i] != (solana.Signature{})
	}
	return false
}

// FullySigned reports whether every required signature of tx is present.
func FullySigned(tx *solana.Transaction) bool {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < required {
		return false
	}
	for i := 0; i < required; i++ {
		if tx.Signatures[i] == (solana.Signature{}) {
			return false
		}
	}
	return true
}
