package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func redisSessionStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisSessionStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return mr, NewRedisSessionStore(client, ttl)
}

func TestRedisSessionRoundTrip(t *testing.T) {
	_, s := redisSessionStore(t, time.Hour)

	sess, err := s.NewSession(42)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("empty token")
	}
	if sess.Expiry.Before(time.Now()) {
		t.Fatalf("expiry in the past: %v", sess.Expiry)
	}

	userID, found, err := s.GetUserIDByToken(sess.Token)
	if err != nil || !found {
		t.Fatalf("lookup: found=%v err=%v", found, err)
	}
	if userID != 42 {
		t.Fatalf("user id: got %d want 42", userID)
	}

	if err := s.DeleteSession(sess.Token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.GetUserIDByToken(sess.Token); found {
		t.Fatal("deleted session still resolves")
	}
}

func TestRedisSessionExpires(t *testing.T) {
	mr, s := redisSessionStore(t, time.Minute)

	sess, err := s.NewSession(7)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, found, _ := s.GetUserIDByToken(sess.Token); found {
		t.Fatal("expired session still resolves")
	}
}

func TestRedisDeleteSessionsForUser(t *testing.T) {
	_, s := redisSessionStore(t, time.Hour)

	first, err := s.NewSession(9)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	second, err := s.NewSession(9)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	other, err := s.NewSession(10)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if err := s.DeleteSessionsForUser(9); err != nil {
		t.Fatalf("delete sessions for user: %v", err)
	}
	for _, tok := range []string{first.Token, second.Token} {
		if _, found, _ := s.GetUserIDByToken(tok); found {
			t.Fatal("session for user 9 still resolves")
		}
	}
	if _, found, _ := s.GetUserIDByToken(other.Token); !found {
		t.Fatal("unrelated user's session was dropped")
	}
}
