package claim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Maphikza/commit-rewards/internal/activity"
	claimstatedb "github.com/Maphikza/commit-rewards/internal/database"
	"github.com/Maphikza/commit-rewards/lib/transaction"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
)

// ErrUnknownSession is returned for a session that was never opened.
var ErrUnknownSession = errors.New("unknown session")

// ErrNotAwaitingConfirmation is returned by Reconcile for attempts that did not end
// with an unknown outcome.
var ErrNotAwaitingConfirmation = errors.New("claim attempt is not awaiting confirmation")

// FeedFactory returns the activity feed for a session.
type FeedFactory func(session string) activity.Feed

// Options configures a Service.
type Options struct {
	Mint           solana.PublicKey
	Decimals       uint8
	Authority      solana.PrivateKey // nil when not configured
	Commitment     rpc.CommitmentType
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Feeds          FeedFactory
}

// Session is one user's claim context. The owner wallet can be rebound while the
// session is in use, so it is only reached through Owner.
type Session struct {
	ID    string
	State *State

	mu    sync.Mutex
	owner solana.PublicKey
}

// Owner returns the wallet currently bound to the session.
func (sess *Session) Owner() solana.PublicKey {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.owner
}

func (sess *Session) bind(owner solana.PublicKey) {
	sess.mu.Lock()
	sess.owner = owner
	sess.mu.Unlock()
}

// Receipt describes how a claim attempt ended.
type Receipt struct {
	Session        string `json:"-"`
	AttemptID      string `json:"attempt_id"`
	State          string `json:"state"`
	Signature      string `json:"signature,omitempty"`
	Units          int64  `json:"units"`
	BaseUnits      uint64 `json:"base_units"`
	Destination    string `json:"destination,omitempty"`
	CreatedAccount bool   `json:"created_account"`
	Kind           string `json:"kind,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Service ties activity refreshes and claims to persisted session state.
type Service struct {
	store        *claimstatedb.Store
	network      transaction.Network
	builder      *transaction.Builder
	orchestrator *transaction.Orchestrator
	opts         Options

	// Observe receives every progress event of a claim, tagged with its session.
	Observe func(session string, p transaction.Progress)

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewService(store *claimstatedb.Store, network transaction.Network, opts Options) *Service {
	return &Service{
		store:        store,
		network:      network,
		builder:      transaction.NewBuilder(opts.Decimals),
		orchestrator: transaction.NewOrchestrator(network, opts.Commitment, opts.ConfirmTimeout, opts.PollInterval),
		opts:         opts,
		sessions:     make(map[string]*Session),
	}
}

// Open returns the session with the given ID, loading its persisted balance the
// first time. owner replaces the stored wallet when it is not the zero key.
func (s *Service) Open(id string, owner solana.PublicKey) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		if !owner.IsZero() {
			sess.bind(owner)
		}
		return sess, nil
	}

	sess := &Session{ID: id, State: NewState(0, 0), owner: owner}

	balance, err := s.store.LoadBalance(id)
	switch {
	case err == nil:
		sess.State = NewState(balance.ClaimableUnits, balance.ClaimedUnits)
		if owner.IsZero() && balance.Owner != "" {
			if stored, perr := solana.PublicKeyFromBase58(balance.Owner); perr == nil {
				sess.owner = stored
			}
		}
		days, err := s.store.LoadActivity(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load activity for session %s: %w", id, err)
		}
		sess.State.Refresh(balance.ClaimableUnits, fromRows(days))
	case errors.Is(err, claimstatedb.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to load balance for session %s: %w", id, err)
	}

	s.sessions[id] = sess
	return sess, nil
}

func (s *Service) session(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return sess, nil
}

// Balance returns the current balance of a session.
func (s *Service) Balance(id string) (Balance, error) {
	sess, err := s.session(id)
	if err != nil {
		return Balance{}, err
	}
	return sess.State.Snapshot(), nil
}

// Refresh re-reads the session's activity feed and recomputes its claimable units.
// Feed failures are logged and leave zero claimable units with an empty histogram.
func (s *Service) Refresh(ctx context.Context, id string) (Balance, error) {
	sess, err := s.session(id)
	if err != nil {
		return Balance{}, err
	}

	var events []activity.Event
	if s.opts.Feeds != nil {
		if feed := s.opts.Feeds(id); feed != nil {
			events, err = feed.Events(ctx)
			if err != nil {
				log.Printf("Failed to fetch activity for session %s: %v", id, err)
				events = nil
			}
		}
	}

	units, buckets := activity.Aggregate(events)
	sess.State.Refresh(units, buckets)
	snap := sess.State.Snapshot()

	if err := s.persist(sess, snap); err != nil {
		log.Printf("Failed to persist balance for session %s: %v", id, err)
	}
	if err := s.store.ReplaceActivity(id, toRows(buckets)); err != nil {
		log.Printf("Failed to persist activity for session %s: %v", id, err)
	}

	log.Printf("Session %s refreshed: %d claimable units over %d days", id, units, len(buckets))
	return snap, nil
}

// RefreshAll refreshes every open or persisted session.
func (s *Service) RefreshAll(ctx context.Context) {
	stored, err := s.store.ListSessions()
	if err != nil {
		log.Printf("Failed to list sessions: %v", err)
	}
	for _, b := range stored {
		if _, err := s.Open(b.Session, solana.PublicKey{}); err != nil {
			log.Printf("Failed to open session %s: %v", b.Session, err)
		}
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Refresh(ctx, id); err != nil {
			log.Printf("Failed to refresh session %s: %v", id, err)
		}
	}
}

// Claim mints the session's claimable units to its owner. signer provides the owner's
// signature and submits the transaction. Balances change only on confirmation.
func (s *Service) Claim(ctx context.Context, id string, signer transaction.Signer) (*Receipt, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	if s.opts.Authority == nil {
		cerr := transaction.NewClaimError(transaction.KindConfigurationMissing, errors.New("mint authority not set"))
		log.Printf("Claim for session %s refused: %v", id, cerr)
		return &Receipt{State: string(transaction.StateFailed), Kind: string(cerr.Kind), Message: cerr.Message()}, cerr
	}
	// The whole attempt uses the wallet bound when it started.
	owner := sess.Owner()
	if owner.IsZero() {
		cerr := transaction.NewClaimError(transaction.KindConfigurationMissing, errors.New("no wallet connected for session"))
		return &Receipt{State: string(transaction.StateFailed), Kind: string(cerr.Kind), Message: cerr.Message()}, cerr
	}

	if err := sess.State.Begin(); err != nil {
		cerr := transaction.NewClaimError(transaction.KindUnclassified, err)
		return &Receipt{State: string(transaction.StateFailed), Kind: string(cerr.Kind), Message: cerr.Message()}, cerr
	}
	defer sess.State.End()

	units := sess.State.Snapshot().ClaimableUnits
	if units <= 0 {
		cerr := transaction.NewClaimError(transaction.KindNoClaimableBalance, errors.New("no claimable units"))
		return &Receipt{State: string(transaction.StateFailed), Kind: string(cerr.Kind), Message: cerr.Message()}, cerr
	}

	attempt := &claimstatedb.ClaimAttempt{
		ID:      uuid.NewString(),
		Session: id,
		Owner:   owner.String(),
		Units:   units,
	}

	dest, err := transaction.Resolve(ctx, s.network, owner, s.opts.Mint)
	if err != nil {
		return s.abandon(attempt, transaction.AsClaimError(err))
	}
	attempt.Destination = dest.Address.String()

	ct, err := s.builder.Build(dest, units, s.opts.Authority.PublicKey(), owner)
	if err != nil {
		return s.abandon(attempt, transaction.NewClaimError(transaction.KindUnclassified, err))
	}
	attempt.BaseUnits = ct.BaseUnits
	attempt.CreatedAccount = ct.CreatesAccount()
	attempt.State = string(transaction.StateBuilt)
	if err := s.store.CreateAttempt(attempt); err != nil {
		// Nothing is signed without a record to reconcile against.
		cerr := transaction.NewClaimError(transaction.KindUnclassified, fmt.Errorf("failed to record claim attempt: %w", err))
		attempt.State = string(transaction.StateFailed)
		attempt.Kind = string(cerr.Kind)
		attempt.Message = cerr.Message()
		return receiptFor(attempt), cerr
	}

	orch := *s.orchestrator
	orch.Observe = func(p transaction.Progress) {
		attempt.State = string(p.State)
		if p.Signature != (solana.Signature{}) {
			attempt.Signature = p.Signature.String()
		}
		if p.State == transaction.StateSubmitted {
			// Keep the signature even if the process dies while waiting for confirmation.
			if err := s.store.UpdateAttempt(attempt); err != nil {
				log.Printf("Failed to update claim attempt %s: %v", attempt.ID, err)
			}
		}
		if s.Observe != nil {
			s.Observe(id, p)
		}
	}

	outcome := orch.Submit(ctx, ct, s.opts.Authority, signer)
	if !outcome.Confirmed() {
		return s.finish(attempt, outcome.Failure)
	}

	credited, err := s.store.MarkCredited(attempt.ID)
	if err != nil {
		log.Printf("Failed to mark claim attempt %s credited: %v", attempt.ID, err)
		credited = true
	}
	if credited {
		sess.State.Credit(units)
		if err := s.persist(sess, sess.State.Snapshot()); err != nil {
			log.Printf("Failed to persist balance for session %s: %v", id, err)
		}
	}
	attempt.Credited = true
	attempt.State = string(transaction.StateConfirmed)
	if err := s.store.UpdateAttempt(attempt); err != nil {
		log.Printf("Failed to update claim attempt %s: %v", attempt.ID, err)
	}

	log.Printf("Session %s claimed %d units, signature %s", id, units, outcome.Signature)
	return receiptFor(attempt), nil
}

// Reconcile re-queries the network for an attempt that ended in ConfirmationTimeout
// and credits it once it is confirmed.
func (s *Service) Reconcile(ctx context.Context, attemptID string) (*Receipt, error) {
	attempt, err := s.store.GetAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.State == string(transaction.StateConfirmed) {
		return receiptFor(attempt), nil
	}
	if attempt.Kind != string(transaction.KindConfirmationTimeout) || attempt.Signature == "" {
		return receiptFor(attempt), ErrNotAwaitingConfirmation
	}

	signature, err := solana.SignatureFromBase58(attempt.Signature)
	if err != nil {
		return nil, fmt.Errorf("stored signature is invalid: %w", err)
	}

	status, err := s.network.Confirm(ctx, signature, s.opts.Commitment)
	if err != nil {
		cerr := transaction.NewClaimError(transaction.KindNetworkUnavailable, err)
		return receiptFor(attempt), cerr
	}

	switch status.Confirmation {
	case transaction.ConfirmationConfirmed:
		credited, err := s.store.MarkCredited(attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to mark claim attempt credited: %w", err)
		}
		if credited {
			s.creditLate(attempt.Session, attempt.Units)
		}
		attempt.State = string(transaction.StateConfirmed)
		attempt.Kind = ""
		attempt.Message = ""
		attempt.Credited = true
		log.Printf("Claim attempt %s confirmed on reconcile", attempt.ID)
	case transaction.ConfirmationFailed:
		cerr := transaction.NewClaimError(transaction.KindUnclassified, status.Err)
		attempt.Kind = string(cerr.Kind)
		attempt.Message = cerr.Message()
		log.Printf("Claim attempt %s failed on chain: %v", attempt.ID, status.Err)
	default:
		return receiptFor(attempt), nil
	}

	if err := s.store.UpdateAttempt(attempt); err != nil {
		log.Printf("Failed to update claim attempt %s: %v", attempt.ID, err)
	}
	return receiptFor(attempt), nil
}

// creditLate settles units confirmed after the claim returned.
func (s *Service) creditLate(id string, units int64) {
	sess, err := s.Open(id, solana.PublicKey{})
	if err != nil {
		log.Printf("Failed to open session %s for crediting: %v", id, err)
		return
	}
	sess.State.Settle(units)
	if err := s.persist(sess, sess.State.Snapshot()); err != nil {
		log.Printf("Failed to persist balance for session %s: %v", id, err)
	}
}

// Attempt returns a recorded claim attempt.
func (s *Service) Attempt(id string) (*Receipt, error) {
	attempt, err := s.store.GetAttempt(id)
	if err != nil {
		return nil, err
	}
	return receiptFor(attempt), nil
}

func (s *Service) abandon(attempt *claimstatedb.ClaimAttempt, cerr *transaction.ClaimError) (*Receipt, error) {
	attempt.State = string(transaction.StateFailed)
	attempt.Kind = string(cerr.Kind)
	attempt.Message = cerr.Message()
	log.Printf("Claim for session %s failed before submission (%s): %v", attempt.Session, cerr.Kind, cerr.Err)
	if err := s.store.CreateAttempt(attempt); err != nil {
		log.Printf("Failed to record claim attempt %s: %v", attempt.ID, err)
	}
	return receiptFor(attempt), cerr
}

func (s *Service) finish(attempt *claimstatedb.ClaimAttempt, cerr *transaction.ClaimError) (*Receipt, error) {
	attempt.State = string(transaction.StateFailed)
	attempt.Kind = string(cerr.Kind)
	attempt.Message = cerr.Message()
	if err := s.store.UpdateAttempt(attempt); err != nil {
		log.Printf("Failed to update claim attempt %s: %v", attempt.ID, err)
	}
	return receiptFor(attempt), cerr
}

func (s *Service) persist(sess *Session, snap Balance) error {
	owner := ""
	if key := sess.Owner(); !key.IsZero() {
		owner = key.String()
	}
	return s.store.SaveBalance(sess.ID, owner, snap.ClaimableUnits, snap.ClaimedUnits)
}

func receiptFor(a *claimstatedb.ClaimAttempt) *Receipt {
	return &Receipt{
		Session:        a.Session,
		AttemptID:      a.ID,
		State:          a.State,
		Signature:      a.Signature,
		Units:          a.Units,
		BaseUnits:      a.BaseUnits,
		Destination:    a.Destination,
		CreatedAccount: a.CreatedAccount,
		Kind:           a.Kind,
		Message:        a.Message,
	}
}

func toRows(buckets []activity.DailyBucket) []claimstatedb.DailyActivity {
	rows := make([]claimstatedb.DailyActivity, len(buckets))
	for i, b := range buckets {
		rows[i] = claimstatedb.DailyActivity{Date: b.Date, Count: b.Count}
	}
	return rows
}

func fromRows(rows []claimstatedb.DailyActivity) []activity.DailyBucket {
	buckets := make([]activity.DailyBucket, len(rows))
	for i, r := range rows {
		buckets[i] = activity.DailyBucket{Date: r.Date, Count: r.Count}
	}
	return buckets
}
