package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Maphikza/commit-rewards/lib/transaction"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type recordingNetwork struct {
	sent []*solana.Transaction
}

func (n *recordingNetwork) GetAccountInfo(context.Context, solana.PublicKey) (*transaction.AccountMetadata, error) {
	return nil, nil
}

func (n *recordingNetwork) GetRecentAnchor(context.Context) (transaction.Anchor, error) {
	return transaction.Anchor{Blockhash: solana.Hash{1}}, nil
}

func (n *recordingNetwork) Confirm(context.Context, solana.Signature, rpc.CommitmentType) (transaction.Status, error) {
	return transaction.Status{Confirmation: transaction.ConfirmationConfirmed}, nil
}

func (n *recordingNetwork) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	n.sent = append(n.sent, tx)
	return tx.Signatures[0], nil
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func writeKeygenFile(t *testing.T, key solana.PrivateKey) string {
	t.Helper()
	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	data, err := json.Marshal(values)
	if err != nil {
		t.Fatalf("failed to encode keyfile: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write keyfile: %v", err)
	}
	return path
}

// claimTx returns an unsigned mint transaction paid by owner and signed by authority.
func claimTx(t *testing.T, owner solana.PublicKey, authority solana.PrivateKey) *solana.Transaction {
	t.Helper()
	mint := newKey(t).PublicKey()
	address, err := transaction.DeriveDestination(owner, mint)
	if err != nil {
		t.Fatalf("DeriveDestination failed: %v", err)
	}
	dest := transaction.DestinationAccount{Owner: owner, Mint: mint, Address: address, Exists: true}
	ct, err := transaction.NewBuilder(9).Build(dest, 2, authority.PublicKey(), owner)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	tx, err := solana.NewTransaction(ct.Instructions(), solana.Hash{9}, solana.TransactionPayer(owner))
	if err != nil {
		t.Fatalf("NewTransaction failed: %v", err)
	}
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(authority.PublicKey()) {
			return &authority
		}
		return nil
	}); err != nil {
		t.Fatalf("authority sign failed: %v", err)
	}
	return tx
}

func TestLoadAuthorityFromSecret(t *testing.T) {
	key := newKey(t)
	loaded, err := LoadAuthority(AuthoritySource{Secret: key.String()})
	if err != nil {
		t.Fatalf("LoadAuthority failed: %v", err)
	}
	if !loaded.PublicKey().Equals(key.PublicKey()) {
		t.Error("loaded a different key")
	}
}

func TestLoadAuthorityNotConfigured(t *testing.T) {
	src := AuthoritySource{}
	if src.Configured() {
		t.Error("empty source should not be configured")
	}
	if _, err := LoadAuthority(src); !errors.Is(err, ErrNoAuthority) {
		t.Errorf("err = %v, want ErrNoAuthority", err)
	}
	if _, err := LoadAuthority(AuthoritySource{Secret: "not-base58!"}); err == nil {
		t.Error("expected invalid secret to fail")
	}
}

func TestEncryptedKeyfileRoundTrip(t *testing.T) {
	key := newKey(t)
	keygen := writeKeygenFile(t, key)
	out := filepath.Join(t.TempDir(), "authority.enc")

	pub, err := EncryptKeyfile(keygen, out, "correct horse")
	if err != nil {
		t.Fatalf("EncryptKeyfile failed: %v", err)
	}
	if !pub.Equals(key.PublicKey()) {
		t.Errorf("reported %s, want %s", pub, key.PublicKey())
	}

	loaded, err := LoadAuthority(AuthoritySource{Keyfile: out, Passphrase: "correct horse"})
	if err != nil {
		t.Fatalf("LoadAuthority failed: %v", err)
	}
	if !loaded.PublicKey().Equals(key.PublicKey()) {
		t.Error("decrypted a different key")
	}

	if _, err := LoadAuthority(AuthoritySource{Keyfile: out, Passphrase: "wrong"}); err == nil {
		t.Error("expected wrong passphrase to fail")
	}

	plain, err := LoadAuthority(AuthoritySource{Keyfile: keygen})
	if err != nil {
		t.Fatalf("loading plain keygen file failed: %v", err)
	}
	if !plain.PublicKey().Equals(key.PublicKey()) {
		t.Error("plain keyfile loaded a different key")
	}
}

func TestKeypairWalletDeclined(t *testing.T) {
	owner := newKey(t)
	network := &recordingNetwork{}
	w := NewKeypairWallet(owner, func(context.Context, *solana.Transaction) (bool, error) {
		return false, nil
	})

	_, err := w.SignAndSend(context.Background(), claimTx(t, owner.PublicKey(), newKey(t)), network)
	if !errors.Is(err, ErrUserRejected) {
		t.Fatalf("err = %v, want ErrUserRejected", err)
	}
	if transaction.Classify(err) != transaction.KindUserRejected {
		t.Error("declining should classify as UserRejected")
	}
	if len(network.sent) != 0 {
		t.Error("declined transaction was sent")
	}
}

func TestKeypairWalletSignsAndSends(t *testing.T) {
	owner := newKey(t)
	network := &recordingNetwork{}
	w := NewKeypairWallet(owner, nil)

	tx := claimTx(t, owner.PublicKey(), newKey(t))
	sig, err := w.SignAndSend(context.Background(), tx, network)
	if err != nil {
		t.Fatalf("SignAndSend failed: %v", err)
	}
	if len(network.sent) != 1 || !transaction.FullySigned(network.sent[0]) {
		t.Fatal("expected one fully signed submission")
	}
	if sig != tx.Signatures[0] {
		t.Error("returned signature should be the fee payer signature")
	}
}

func TestKeypairWalletRefusesPartialTransaction(t *testing.T) {
	owner := newKey(t)
	network := &recordingNetwork{}
	w := NewKeypairWallet(owner, nil)

	// Authority signature missing.
	tx := claimTx(t, owner.PublicKey(), newKey(t))
	for i := 1; i < len(tx.Signatures); i++ {
		tx.Signatures[i] = solana.Signature{}
	}

	if _, err := w.SignAndSend(context.Background(), tx, network); err == nil {
		t.Fatal("expected a partially signed transaction to be refused")
	}
	if len(network.sent) != 0 {
		t.Error("partial transaction was sent")
	}
}
