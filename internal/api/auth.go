// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthMiddleware gates every request behind a Bearer token signed with
// secret, the same Authorization-header/HS256 convention the reference implementation's
// JWTAuthenticator.Login uses (internal/auth/jwt.go), generalized here to a
// single shared-secret service token instead of a per-user login flow —
// this service has no user/role model of its own ( Non-goals).
func JWTAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" {
				writeJSON(rw, http.StatusUnauthorized, errorBody{Message: "missing Authorization bearer token"})
				return
			}
			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name, jwt.SigningMethodHS512.Name}))
			if err != nil || !token.Valid {
				writeJSON(rw, http.StatusUnauthorized, errorBody{Message: "invalid or expired token"})
				return
			}
			next.ServeHTTP(rw, r)
		})
	}
}
