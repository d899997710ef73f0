package store

import (
	"errors"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"annotator3d/internal/util"
)

const (
	jwtIssuer   = "annotator3d"
	jwtAudience = "annotator3d-api"
)

var jwtLeeway = 30 * time.Second

// JWTSessionStore issues and validates HS256 JWT tokens. Logout and per-user
// invalidation go through the revoker since the tokens themselves are
// stateless.
type JWTSessionStore struct {
	secret  []byte
	ttl     time.Duration
	revoker UserTokenRevoker
}

// NewJWTSessionStore builds an HS256 JWT session store.
func NewJWTSessionStore(secret string, ttl time.Duration, revoker UserTokenRevoker) (*JWTSessionStore, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret required")
	}
	if revoker == nil {
		return nil, errors.New("jwt revoker required")
	}
	return &JWTSessionStore{secret: []byte(secret), ttl: ttl, revoker: revoker}, nil
}

// NewSession creates a signed JWT for the user. Because iat carries second
// precision, a token issued in the same second as a user-wide revocation
// would be caught by it; the issued-at is bumped just past the cutoff so the
// fresh token survives while every earlier one stays dead. The bump is at
// most a second per revocation, well inside the validation leeway.
func (s *JWTSessionStore) NewSession(userID int64) (Session, error) {
	now := time.Now().UTC()
	expiry := now.Add(s.ttl)
	issued := now.Truncate(time.Second)
	cutoff, err := s.revoker.RevokedAfter(userID)
	if err != nil {
		return Session{}, err
	}
	if !cutoff.IsZero() && !issued.After(cutoff) {
		issued = cutoff.Truncate(time.Second).Add(time.Second)
	}
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    jwtIssuer,
		Audience:  jwt.ClaimStrings{jwtAudience},
		ExpiresAt: jwt.NewNumericDate(expiry),
		IssuedAt:  jwt.NewNumericDate(issued),
		NotBefore: jwt.NewNumericDate(issued),
		ID:        util.NewID(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, UserID: userID, Expiry: expiry}, nil
}

// GetUserIDByToken validates a JWT and returns the subject. Invalid or
// revoked tokens report not-found rather than an error.
func (s *JWTSessionStore) GetUserIDByToken(token string) (int64, bool, error) {
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return 0, false, nil
	}
	revoked, err := s.revoker.IsRevoked(claims.ID)
	if err != nil {
		return 0, false, err
	}
	if revoked {
		return 0, false, nil
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	cutoff, err := s.revoker.RevokedAfter(userID)
	if err != nil {
		return 0, false, err
	}
	if !cutoff.IsZero() {
		if claims.IssuedAt == nil || !claims.IssuedAt.Time.UTC().After(cutoff) {
			return 0, false, nil
		}
	}
	return userID, true, nil
}

// DeleteSession revokes the token until it expires.
func (s *JWTSessionStore) DeleteSession(token string) error {
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	return s.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

// DeleteSessionsForUser rejects every token the user holds, including one
// issued with a bumped iat after an earlier revocation in the same second.
// The cutoff therefore never lands below the second boundary of the latest
// possible issued-at.
func (s *JWTSessionStore) DeleteSessionsForUser(userID int64) error {
	cutoff := time.Now().UTC()
	prev, err := s.revoker.RevokedAfter(userID)
	if err != nil {
		return err
	}
	if !prev.IsZero() {
		if next := prev.Truncate(time.Second).Add(time.Second); cutoff.Before(next) {
			cutoff = next
		}
	}
	return s.revoker.RevokeUser(userID, cutoff)
}

func (s *JWTSessionStore) parseAndVerify(token string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, errors.New("invalid token format")
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithAudience(jwtAudience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(jwtLeeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return claims, err
	}
	if strings.TrimSpace(claims.ID) == "" {
		return claims, errors.New("token jti missing")
	}
	return claims, nil
}

var _ SessionStore = (*JWTSessionStore)(nil)
