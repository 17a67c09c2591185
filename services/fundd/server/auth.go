package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"fundvault/native/fund"
)

type contextKey string

const walletContextKey contextKey = "fundd.wallet"

// authenticate verifies the bearer token and attaches the caller's wallet to
// the request context. The wallet is taken from the token subject.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return s.jwtSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		subject, err := token.Claims.GetSubject()
		if err != nil || strings.TrimSpace(subject) == "" {
			writeError(w, http.StatusUnauthorized, "token missing subject")
			return
		}
		ctx := context.WithValue(r.Context(), walletContextKey, fund.WalletID(subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerWallet returns the authenticated wallet from the request context.
func callerWallet(r *http.Request) (fund.WalletID, bool) {
	wallet, ok := r.Context().Value(walletContextKey).(fund.WalletID)
	if !ok || wallet == "" {
		return "", false
	}
	return wallet, true
}

// IssueToken mints a signed bearer token for the wallet, used by tests and
// operational tooling.
func IssueToken(secret []byte, wallet fund.WalletID) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": string(wallet),
	})
	return token.SignedString(secret)
}
