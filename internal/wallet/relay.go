package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Maphikza/commit-rewards/lib/transaction"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Wallet error code for a request the user declined.
const codeUserRejected = 4001

var (
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrWalletDisconnected = errors.New("wallet disconnected before answering")
)

// Messages exchanged with the browser wallet.
type relayMessage struct {
	Type        string       `json:"type"`
	ID          string       `json:"id,omitempty"`
	Transaction string       `json:"transaction,omitempty"`
	Signature   string       `json:"signature,omitempty"`
	Error       *walletError `json:"error,omitempty"`
	Payload     interface{}  `json:"payload,omitempty"`
}

type walletError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type signResult struct {
	signature solana.Signature
	err       error
}

type relayConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	mu      sync.Mutex
	pending map[string]chan signResult
}

func (c *relayConn) write(msg relayMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(msg)
}

func (c *relayConn) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- signResult{err: err}
		delete(c.pending, id)
	}
}

// Relay forwards claim transactions to browser wallets connected over websockets.
// One wallet connection is kept per session; a newer connection replaces the older one.
type Relay struct {
	mu       sync.Mutex
	conns    map[string]*relayConn
	upgrader websocket.Upgrader
}

func NewRelay(allowedOrigin string) *Relay {
	return &Relay{
		conns: make(map[string]*relayConn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
	}
}

// Serve upgrades the request and serves the wallet connection for session until it closes.
func (r *Relay) Serve(w http.ResponseWriter, req *http.Request, session string) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("Failed to upgrade wallet connection: %v", err)
		return
	}

	conn := &relayConn{ws: ws, pending: make(map[string]chan signResult)}

	r.mu.Lock()
	if old, ok := r.conns[session]; ok {
		old.ws.Close()
	}
	r.conns[session] = conn
	r.mu.Unlock()

	log.Printf("Wallet connected for session %s", session)

	defer func() {
		r.mu.Lock()
		if r.conns[session] == conn {
			delete(r.conns, session)
		}
		r.mu.Unlock()
		conn.failPending(ErrWalletDisconnected)
		ws.Close()
		log.Printf("Wallet disconnected for session %s", session)
	}()

	for {
		var msg relayMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading from wallet connection: %v", err)
			}
			return
		}
		if msg.Type != "sign_response" {
			continue
		}

		conn.mu.Lock()
		ch, ok := conn.pending[msg.ID]
		delete(conn.pending, msg.ID)
		conn.mu.Unlock()
		if !ok {
			log.Printf("Ignoring response for unknown request %s", msg.ID)
			continue
		}
		ch <- parseSignResponse(msg)
	}
}

func parseSignResponse(msg relayMessage) signResult {
	if msg.Error != nil {
		if msg.Error.Code == codeUserRejected || strings.Contains(strings.ToLower(msg.Error.Message), "user rejected") {
			return signResult{err: ErrUserRejected}
		}
		return signResult{err: fmt.Errorf("wallet error %d: %s", msg.Error.Code, msg.Error.Message)}
	}
	sig, err := solana.SignatureFromBase58(msg.Signature)
	if err != nil {
		return signResult{err: fmt.Errorf("wallet returned an invalid signature: %w", err)}
	}
	return signResult{signature: sig}
}

// Connected reports whether a wallet is connected for session.
func (r *Relay) Connected(session string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[session]
	return ok
}

// Notify pushes an event to the session's wallet connection, if any.
func (r *Relay) Notify(session, kind string, payload interface{}) {
	r.mu.Lock()
	conn, ok := r.conns[session]
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := conn.write(relayMessage{Type: kind, Payload: payload}); err != nil {
		log.Printf("Failed to notify wallet for session %s: %v", session, err)
	}
}

// Signer returns the signing capability backed by session's wallet connection.
func (r *Relay) Signer(session string) transaction.Signer {
	return &relaySigner{relay: r, session: session}
}

type relaySigner struct {
	relay   *Relay
	session string
}

func (s *relaySigner) SignAndSend(ctx context.Context, tx *solana.Transaction, _ transaction.Network) (solana.Signature, error) {
	s.relay.mu.Lock()
	conn, ok := s.relay.conns[s.session]
	s.relay.mu.Unlock()
	if !ok {
		return solana.Signature{}, ErrWalletNotConnected
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	id := uuid.NewString()
	ch := make(chan signResult, 1)
	conn.mu.Lock()
	conn.pending[id] = ch
	conn.mu.Unlock()

	if err := conn.write(relayMessage{
		Type:        "sign_request",
		ID:          id,
		Transaction: base64.StdEncoding.EncodeToString(raw),
	}); err != nil {
		conn.mu.Lock()
		delete(conn.pending, id)
		conn.mu.Unlock()
		return solana.Signature{}, fmt.Errorf("failed to send sign request to wallet: %w", err)
	}

	select {
	case res := <-ch:
		return res.signature, res.err
	case <-ctx.Done():
		conn.mu.Lock()
		delete(conn.pending, id)
		conn.mu.Unlock()
		return solana.Signature{}, ctx.Err()
	}
}
