package server

import (
	"testing"
	"time"
)

func TestNonceRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	issuer := NewNonceIssuer("secret", func() time.Time { return now })

	nonce := issuer.Issue("clear", "alice")
	if !issuer.Verify("clear", "alice", nonce) {
		t.Fatalf("fresh nonce should verify")
	}
	if issuer.Verify("settings", "alice", nonce) {
		t.Fatalf("nonce is bound to action")
	}
	if issuer.Verify("clear", "bob", nonce) {
		t.Fatalf("nonce is bound to actor")
	}
	if issuer.Verify("clear", "alice", "") {
		t.Fatalf("empty nonce must fail")
	}
}

func TestNonceExpiresAfterTwoTicks(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	issuer := NewNonceIssuer("secret", func() time.Time { return now })
	nonce := issuer.Issue("clear", "alice")

	now = now.Add(NonceTick)
	if !issuer.Verify("clear", "alice", nonce) {
		t.Fatalf("nonce from previous tick should verify")
	}
	now = now.Add(NonceTick)
	if issuer.Verify("clear", "alice", nonce) {
		t.Fatalf("nonce older than two ticks should fail")
	}
}

func TestNonceDependsOnSecret(t *testing.T) {
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	a := NewNonceIssuer("one", now).Issue("clear", "alice")
	if NewNonceIssuer("two", now).Verify("clear", "alice", a) {
		t.Fatalf("nonce must not verify under another secret")
	}
}
