package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
)

func startRelay(t *testing.T, session string) (*Relay, *websocket.Conn) {
	t.Helper()
	relay := NewRelay("*")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relay.Serve(w, r, session)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial relay: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for !relay.Connected(session) {
		if time.Now().After(deadline) {
			t.Fatal("wallet never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return relay, conn
}

func TestRelaySignerNotConnected(t *testing.T) {
	relay := NewRelay("")
	_, err := relay.Signer("nobody").SignAndSend(context.Background(), &solana.Transaction{}, &recordingNetwork{})
	if !errors.Is(err, ErrWalletNotConnected) {
		t.Errorf("err = %v, want ErrWalletNotConnected", err)
	}
}

func TestRelayUserRejection(t *testing.T) {
	relay, conn := startRelay(t, "alice")
	owner := newKey(t)

	go func() {
		var req relayMessage
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		conn.WriteJSON(relayMessage{
			Type:  "sign_response",
			ID:    req.ID,
			Error: &walletError{Code: codeUserRejected, Message: "User rejected the request."},
		})
	}()

	_, err := relay.Signer("alice").SignAndSend(context.Background(), claimTx(t, owner.PublicKey(), newKey(t)), &recordingNetwork{})
	if !errors.Is(err, ErrUserRejected) {
		t.Errorf("err = %v, want ErrUserRejected", err)
	}
}

func TestParseSignResponseRejections(t *testing.T) {
	tests := []struct {
		name     string
		err      walletError
		rejected bool
	}{
		{"code", walletError{Code: codeUserRejected, Message: "denied"}, true},
		{"message without code", walletError{Message: "User rejected the request."}, true},
		{"other error", walletError{Code: -32603, Message: "Internal JSON-RPC error."}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			walletErr := tt.err
			res := parseSignResponse(relayMessage{Type: "sign_response", Error: &walletErr})
			if res.err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(res.err, ErrUserRejected); got != tt.rejected {
				t.Errorf("rejected = %v, want %v (err %v)", got, tt.rejected, res.err)
			}
		})
	}
}

func TestRelayReturnsWalletSignature(t *testing.T) {
	relay, conn := startRelay(t, "bob")
	owner := newKey(t)

	go func() {
		var req relayMessage
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.Transaction)
		if err != nil {
			return
		}
		tx, err := solana.TransactionFromBytes(raw)
		if err != nil {
			return
		}
		signed, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
			if key.Equals(owner.PublicKey()) {
				return &owner
			}
			return nil
		})
		if err != nil {
			return
		}
		conn.WriteJSON(relayMessage{Type: "sign_response", ID: req.ID, Signature: signed[0].String()})
	}()

	tx := claimTx(t, owner.PublicKey(), newKey(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sig, err := relay.Signer("bob").SignAndSend(ctx, tx, &recordingNetwork{})
	if err != nil {
		t.Fatalf("SignAndSend failed: %v", err)
	}
	if sig == (solana.Signature{}) {
		t.Error("expected a signature from the wallet")
	}
}

func TestRelayDisconnectFailsPending(t *testing.T) {
	relay, conn := startRelay(t, "carol")

	go func() {
		var req relayMessage
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		conn.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := relay.Signer("carol").SignAndSend(ctx, claimTx(t, newKey(t).PublicKey(), newKey(t)), &recordingNetwork{})
	if !errors.Is(err, ErrWalletDisconnected) {
		t.Errorf("err = %v, want ErrWalletDisconnected", err)
	}
}
