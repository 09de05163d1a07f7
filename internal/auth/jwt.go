// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package auth verifies the bearer credentials presented at connection
// admission. Tokens are minted by the external SSO flow; this package only
// validates signature, expiry, and the controller rating floor.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chiartcc/switchboard/internal/config"
)

var (
	// ErrNotAuthenticated covers malformed, expired, or mis-signed tokens.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRatingNotApproved rejects controllers below the configured rating floor.
	ErrRatingNotApproved = errors.New("rating not approved for use of this application")
)

// Claims are the token claims Switchboard consumes. CID is the stable VATSIM
// controller identity; Rating is the network controller rating.
type Claims struct {
	CID    int `json:"cid"`
	Rating int `json:"rating"`
	jwt.RegisteredClaims
}

// TokenVerifier validates bearer credentials against the shared signing key.
type TokenVerifier struct {
	secret    []byte
	minRating int
}

// NewTokenVerifier creates a verifier from the security configuration.
// The signing key must be at least 32 characters.
func NewTokenVerifier(cfg *config.SecurityConfig) (*TokenVerifier, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	return &TokenVerifier{
		secret:    []byte(cfg.JWTSecret),
		minRating: cfg.MinRating,
	}, nil
}

// Verify parses and validates a token string, returning its claims.
// Fails closed: any parse, signature, or expiry problem returns
// ErrNotAuthenticated; an under-rated controller returns ErrRatingNotApproved.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, ErrNotAuthenticated
	}
	if claims.CID <= 0 {
		return nil, ErrNotAuthenticated
	}
	if claims.Rating < v.minRating {
		return nil, ErrRatingNotApproved
	}
	return claims, nil
}
