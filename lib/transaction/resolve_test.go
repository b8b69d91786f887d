package transaction

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestDeriveDestinationIsDeterministic(t *testing.T) {
	owner := newKey(t).PublicKey()
	other := newKey(t).PublicKey()
	mint := newKey(t).PublicKey()

	a, err := DeriveDestination(owner, mint)
	if err != nil {
		t.Fatalf("DeriveDestination failed: %v", err)
	}
	b, _ := DeriveDestination(owner, mint)
	if !a.Equals(b) {
		t.Errorf("same inputs derived %s and %s", a, b)
	}
	c, _ := DeriveDestination(other, mint)
	if a.Equals(c) {
		t.Error("different owners derived the same address")
	}
}

func TestResolve(t *testing.T) {
	owner := newKey(t).PublicKey()
	mint := newKey(t).PublicKey()
	network := newFakeNetwork()

	dest, err := Resolve(context.Background(), network, owner, mint)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if dest.Exists {
		t.Error("expected missing account")
	}
	if !dest.Owner.Equals(owner) || !dest.Mint.Equals(mint) {
		t.Errorf("unexpected destination %+v", dest)
	}

	network.accounts[dest.Address] = true
	dest, err = Resolve(context.Background(), network, owner, mint)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !dest.Exists {
		t.Error("expected existing account")
	}
}

func TestResolveLookupFailure(t *testing.T) {
	network := newFakeNetwork()
	network.lookupErr = errors.New("connection refused")

	_, err := Resolve(context.Background(), network, newKey(t).PublicKey(), newKey(t).PublicKey())
	if err == nil {
		t.Fatal("expected a lookup failure to be reported")
	}
	if kind := Classify(err); kind != KindNetworkUnavailable {
		t.Errorf("kind = %s, want %s", kind, KindNetworkUnavailable)
	}

}

func TestResolveCancelledLookup(t *testing.T) {
	network := newFakeNetwork()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	network.lookupErr = ctx.Err()

	_, err := Resolve(ctx, network, newKey(t).PublicKey(), newKey(t).PublicKey())
	if kind := Classify(err); kind != KindNetworkUnavailable {
		t.Errorf("cancelled lookup kind = %s, want %s", kind, KindNetworkUnavailable)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cause should be kept, got %v", err)
	}
}

func TestResolveRejectsForeignAccount(t *testing.T) {
	owner := newKey(t).PublicKey()
	mint := newKey(t).PublicKey()
	network := newFakeNetwork()
	address, _ := DeriveDestination(owner, mint)
	network.accounts[address] = true
	network.accountOwner = solana.SystemProgramID

	_, err := Resolve(context.Background(), network, owner, mint)
	if err == nil {
		t.Fatal("expected an account not owned by the token program to be rejected")
	}
	if !errors.Is(err, ErrForeignDestination) {
		t.Errorf("err = %v, want ErrForeignDestination", err)
	}
	if kind := Classify(err); kind != KindUnclassified {
		t.Errorf("kind = %s, want %s", kind, KindUnclassified)
	}
}
