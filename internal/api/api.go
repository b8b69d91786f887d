package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/Maphikza/commit-rewards/internal/claim"
	claimstatedb "github.com/Maphikza/commit-rewards/internal/database"
	"github.com/Maphikza/commit-rewards/internal/wallet"
	"github.com/Maphikza/commit-rewards/lib/transaction"
	"github.com/gagliardetto/solana-go"
)

// NewAPI wires the claim service to the wallet relay. Claim progress is pushed to the
// session's wallet connection.
func NewAPI(claims *claim.Service, relay *wallet.Relay, allowedOrigin string, jwtKey []byte) *API {
	a := &API{
		Claims:        claims,
		Relay:         relay,
		AllowedOrigin: allowedOrigin,
		jwtKey:        jwtKey,
	}
	claims.Observe = func(session string, p transaction.Progress) {
		event := ProgressEvent{State: string(p.State), Kind: string(p.Kind), At: p.At.Unix()}
		if p.Signature != (solana.Signature{}) {
			event.Signature = p.Signature.String()
		}
		relay.Notify(session, "claim_progress", event)
	}
	return a
}

// openSession resolves the caller's session from the token claims.
func (a *API) openSession(w http.ResponseWriter, r *http.Request) (*claim.Session, bool) {
	claims := claimsFrom(r)
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	var owner solana.PublicKey
	if claims.Wallet != "" {
		key, err := solana.PublicKeyFromBase58(claims.Wallet)
		if err != nil {
			writeError(w, http.StatusBadRequest, "", "Token carries an invalid wallet address")
			return nil, false
		}
		owner = key
	}

	sess, err := a.Claims.Open(claims.UserID, owner)
	if err != nil {
		log.Printf("Failed to open session %s: %v", claims.UserID, err)
		writeError(w, http.StatusInternalServerError, "", "Failed to load session")
		return nil, false
	}
	return sess, true
}

func (a *API) HandleBalance(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.openSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse(sess, sess.State.Snapshot()))
}

func (a *API) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.openSession(w, r)
	if !ok {
		return
	}
	balance, err := a.Claims.Refresh(r.Context(), sess.ID)
	if err != nil {
		log.Printf("Refresh failed for session %s: %v", sess.ID, err)
		writeError(w, http.StatusInternalServerError, "", "Failed to refresh balance")
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse(sess, balance))
}

// HandleClaim runs a claim and signs through the session's connected browser wallet.
func (a *API) HandleClaim(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.openSession(w, r)
	if !ok {
		return
	}
	if !a.Relay.Connected(sess.ID) {
		writeError(w, http.StatusConflict, "", "Connect a wallet before claiming")
		return
	}

	receipt, err := a.Claims.Claim(r.Context(), sess.ID, a.Relay.Signer(sess.ID))
	if err != nil {
		cerr := transaction.AsClaimError(err)
		status := statusForKind(cerr.Kind)
		if errors.Is(err, claim.ErrClaimInProgress) {
			status = http.StatusConflict
		}
		if receipt == nil {
			writeError(w, status, string(cerr.Kind), cerr.Message())
			return
		}
		writeJSON(w, status, receipt)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) HandleGetAttempt(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	receipt, err := a.Claims.Attempt(r.PathValue("id"))
	if err != nil || receipt.Session != claims.UserID {
		if err != nil && !errors.Is(err, claimstatedb.ErrNotFound) {
			log.Printf("Failed to load claim attempt: %v", err)
		}
		writeError(w, http.StatusNotFound, "", "Claim attempt not found")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	id := r.PathValue("id")

	existing, err := a.Claims.Attempt(id)
	if err != nil || existing.Session != claims.UserID {
		writeError(w, http.StatusNotFound, "", "Claim attempt not found")
		return
	}

	receipt, err := a.Claims.Reconcile(r.Context(), id)
	switch {
	case errors.Is(err, claim.ErrNotAwaitingConfirmation):
		writeJSON(w, http.StatusConflict, receipt)
	case err != nil:
		cerr := transaction.AsClaimError(err)
		writeError(w, statusForKind(cerr.Kind), string(cerr.Kind), cerr.Message())
	default:
		writeJSON(w, http.StatusOK, receipt)
	}
}

// HandleWallet upgrades to the websocket the browser wallet signs over.
func (a *API) HandleWallet(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.openSession(w, r)
	if !ok {
		return
	}
	a.Relay.Serve(w, r, sess.ID)
}

func balanceResponse(sess *claim.Session, balance claim.Balance) BalanceResponse {
	resp := BalanceResponse{Session: sess.ID, Balance: balance}
	if owner := sess.Owner(); !owner.IsZero() {
		resp.Wallet = owner.String()
	}
	return resp
}

func statusForKind(kind transaction.Kind) int {
	switch kind {
	case transaction.KindConfigurationMissing:
		return http.StatusServiceUnavailable
	case transaction.KindNoClaimableBalance:
		return http.StatusUnprocessableEntity
	case transaction.KindNetworkUnavailable:
		return http.StatusBadGateway
	case transaction.KindUserRejected:
		return http.StatusBadRequest
	case transaction.KindConfirmationTimeout:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Kind: kind, Message: message})
}
