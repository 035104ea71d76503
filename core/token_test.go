package core

import (
	"errors"
	"testing"
	"time"
)

func testCodec() *TokenCodec {
	return NewTokenCodec([]byte("member-secret-for-tests"), []byte("moderator-secret-for-tests"), time.Hour)
}

func TestTokenRoundTrip(t *testing.T) {
	codec := testCodec()
	now := time.Now()

	token, err := codec.Issue("member-1", KindMember, now)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	claims, err := codec.Verify(token, KindMember)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.PrincipalID != "member-1" || claims.Kind != KindMember {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenKindConfusionRejected(t *testing.T) {
	codec := testCodec()
	now := time.Now()

	memberToken, err := codec.Issue("member-1", KindMember, now)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := codec.Verify(memberToken, KindModerator); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("member token verified as moderator: err=%v", err)
	}

	modToken, err := codec.Issue("mod-1", KindModerator, now)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := codec.Verify(modToken, KindMember); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("moderator token verified as member: err=%v", err)
	}
}

func TestTokenExpiryRejected(t *testing.T) {
	codec := testCodec()
	issued := time.Now().Add(-2 * time.Hour) // ttl is one hour

	token, err := codec.Issue("member-1", KindMember, issued)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := codec.Verify(token, KindMember); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: err=%v", err)
	}
}

func TestTokenGarbageRejected(t *testing.T) {
	codec := testCodec()
	for _, tok := range []string{"", "not-a-jwt", "aaa.bbb.ccc"} {
		if _, err := codec.Verify(tok, KindMember); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("garbage token %q accepted: err=%v", tok, err)
		}
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	now := time.Now()
	token, err := testCodec().Issue("member-1", KindMember, now)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	other := NewTokenCodec([]byte("completely-different-secret"), []byte("moderator-secret-for-tests"), time.Hour)
	if _, err := other.Verify(token, KindMember); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token verified under a different secret: err=%v", err)
	}
}
