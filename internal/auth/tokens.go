// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/adiadia/tracker/internal/domain"
)

const DefaultMaxRequestsPerMin = 600

type tokenEntry struct {
	hash      []byte
	principal Principal
}

// StaticTokens maps bearer tokens to users. Only token hashes are kept.
type StaticTokens struct {
	entries []tokenEntry
}

// ParseTokens reads "token:user_id" pairs separated by commas.
func ParseTokens(raw string, maxRequestsPerMin int) (*StaticTokens, error) {
	if maxRequestsPerMin <= 0 {
		maxRequestsPerMin = DefaultMaxRequestsPerMin
	}

	st := &StaticTokens{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		token, user, ok := strings.Cut(pair, ":")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			return nil, fmt.Errorf("invalid token entry %q: want token:user_id", pair)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(user), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id in token entry: %w", err)
		}

		st.entries = append(st.entries, tokenEntry{
			hash: sha256Sum(token),
			principal: Principal{
				UserID:            domain.UserID(id),
				MaxRequestsPerMin: maxRequestsPerMin,
			},
		})
	}
	return st, nil
}

func (s *StaticTokens) Len() int { return len(s.entries) }

// ResolveToken returns the principal owning bearerToken.
func (s *StaticTokens) ResolveToken(_ context.Context, bearerToken string) (Principal, bool, error) {
	if bearerToken == "" {
		return Principal{}, false, nil
	}

	hash := sha256Sum(bearerToken)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(hash, e.hash) == 1 {
			return e.principal, true, nil
		}
	}
	return Principal{}, false, nil
}

func sha256Sum(input string) []byte {
	sum := sha256.Sum256([]byte(input))
	return sum[:]
}

// HashToken renders the stored form of a token, for logs and diagnostics.
func HashToken(token string) string {
	return hex.EncodeToString(sha256Sum(token))
}
