// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	principalKey
)

// Principal is the authenticated caller.
type Principal struct {
	Subject     string
	Permissions []string
}

// Can reports whether the principal holds perm. Admins hold every
// permission.
func (p *Principal) Can(perm string) bool {
	for _, have := range p.Permissions {
		if have == perm || have == PermissionAdmin {
			return true
		}
	}
	return false
}

// anonymous is used when authentication is disabled.
var anonymous = &Principal{Subject: "anonymous", Permissions: []string{PermissionAdmin}}

func principalFrom(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey).(*Principal); ok {
		return p
	}
	return anonymous
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.cfg.JWTSecret) == 0 || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		p, err := s.parseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			s.log.Warn("", requestIDFrom(r.Context()), "Rejected bearer token", map[string]interface{}{"error": err.Error()})
			writeJSONError(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}

func (s *Server) parseToken(tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.cfg.JWTSecret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	subject := getClaimString(claims, "sub")
	if subject == "" {
		subject = getClaimString(claims, "email")
	}
	if subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &Principal{Subject: subject, Permissions: getClaimStringArray(claims, "permissions")}, nil
}

// require wraps h so that only principals holding perm reach it.
func (s *Server) require(perm string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !principalFrom(r.Context()).Can(perm) {
			writeJSONError(w, "Permission '"+perm+"' required", http.StatusForbidden)
			return
		}
		h(w, r)
	}
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

// getClaimStringArray accepts a JSON array or a comma-separated string.
func getClaimStringArray(claims jwt.MapClaims, key string) []string {
	switch val := claims[key].(type) {
	case string:
		if val == "" {
			return []string{}
		}
		return strings.Split(val, ",")
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}
