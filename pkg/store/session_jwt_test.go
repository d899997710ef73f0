package store

import (
	"strings"
	"testing"
	"time"
)

func jwtStore(t *testing.T) (*JWTSessionStore, *MemoryTokenRevoker) {
	t.Helper()
	revoker := NewMemoryTokenRevoker()
	s, err := NewJWTSessionStore("test-secret", time.Hour, revoker)
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}
	return s, revoker
}

func TestJWTSessionRoundTrip(t *testing.T) {
	s, _ := jwtStore(t)

	sess, err := s.NewSession(42)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if strings.Count(sess.Token, ".") != 2 {
		t.Fatalf("token does not look like a jwt: %q", sess.Token)
	}

	userID, found, err := s.GetUserIDByToken(sess.Token)
	if err != nil || !found {
		t.Fatalf("lookup: found=%v err=%v", found, err)
	}
	if userID != 42 {
		t.Fatalf("user id: got %d want 42", userID)
	}
}

func TestJWTSessionRejectsTamperedToken(t *testing.T) {
	s, _ := jwtStore(t)

	sess, err := s.NewSession(42)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	tampered := sess.Token[:len(sess.Token)-2] + "xx"
	if _, found, _ := s.GetUserIDByToken(tampered); found {
		t.Fatal("tampered token validated")
	}
	if _, found, _ := s.GetUserIDByToken("not-a-token"); found {
		t.Fatal("garbage token validated")
	}
}

func TestJWTSessionRejectsWrongSecret(t *testing.T) {
	s, _ := jwtStore(t)
	other, err := NewJWTSessionStore("other-secret", time.Hour, NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}

	sess, err := other.NewSession(42)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, found, _ := s.GetUserIDByToken(sess.Token); found {
		t.Fatal("token signed with a different secret validated")
	}
}

func TestJWTDeleteSessionRevokes(t *testing.T) {
	s, _ := jwtStore(t)

	sess, err := s.NewSession(42)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(sess.Token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, found, _ := s.GetUserIDByToken(sess.Token); found {
		t.Fatal("revoked token still validates")
	}
}

func TestJWTLoginSupersedesPreviousToken(t *testing.T) {
	s, _ := jwtStore(t)

	first, err := s.NewSession(42)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSessionsForUser(42); err != nil {
		t.Fatalf("delete sessions: %v", err)
	}
	second, err := s.NewSession(42)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if _, found, _ := s.GetUserIDByToken(first.Token); found {
		t.Fatal("superseded token still validates")
	}
	if _, found, _ := s.GetUserIDByToken(second.Token); !found {
		t.Fatal("fresh token rejected")
	}

	// Superseding again within the same wall-clock second must still kill
	// the middle token.
	if err := s.DeleteSessionsForUser(42); err != nil {
		t.Fatalf("delete sessions: %v", err)
	}
	third, err := s.NewSession(42)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, found, _ := s.GetUserIDByToken(second.Token); found {
		t.Fatal("superseded token still validates")
	}
	if _, found, _ := s.GetUserIDByToken(third.Token); !found {
		t.Fatal("fresh token rejected")
	}
}

func TestJWTUserCutoffRejectsEarlierTokens(t *testing.T) {
	s, revoker := jwtStore(t)

	sess, err := s.NewSession(42)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := revoker.RevokeUser(42, time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if _, found, _ := s.GetUserIDByToken(sess.Token); found {
		t.Fatal("token issued before cutoff still validates")
	}
}

func TestJWTRequiresSecretAndRevoker(t *testing.T) {
	if _, err := NewJWTSessionStore(" ", time.Hour, NewMemoryTokenRevoker()); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewJWTSessionStore("secret", time.Hour, nil); err == nil {
		t.Fatal("expected error for nil revoker")
	}
}
