package api

import (
	"github.com/Maphikza/commit-rewards/internal/claim"
	"github.com/Maphikza/commit-rewards/internal/wallet"
)

type API struct {
	Claims        *claim.Service
	Relay         *wallet.Relay
	AllowedOrigin string
	jwtKey        []byte
}

type BalanceResponse struct {
	Session string `json:"session"`
	Wallet  string `json:"wallet"`
	claim.Balance
}

type ErrorResponse struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// ProgressEvent is pushed to the wallet connection on every claim state change.
type ProgressEvent struct {
	State     string `json:"state"`
	Signature string `json:"signature,omitempty"`
	Kind      string `json:"kind,omitempty"`
	At        int64  `json:"at"`
}

type contextKey string

const (
	requestIDKey contextKey = "requestID"
	claimsKey    contextKey = "claims"
)
