// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package auth

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// makeAccessToken builds a JWT-shaped token carrying the given claims. The
// header and signature are not validated by the claim parser.
func makeAccessToken(t *testing.T, claims TokenClaims) string {
	t.Helper()

	body, err := json.Marshal(claims)
	require.NoError(t, err)

	return "e30." + base64.RawURLEncoding.EncodeToString(body) + ".c2ln"
}

func TestGetClaimsFromAccessToken(t *testing.T) {
	token := makeAccessToken(t, TokenClaims{
		PreferredUsername: "user@contoso.com",
		TenantId:          "11111111-1111-1111-1111-111111111111",
		Oid:               "22222222-2222-2222-2222-222222222222",
	})

	claims, err := GetClaimsFromAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user@contoso.com", claims.PreferredUsername)
	require.Equal(t, "11111111-1111-1111-1111-111111111111", claims.TenantId)
	require.Equal(t, "22222222-2222-2222-2222-222222222222", claims.Oid)
}

func TestGetClaimsFromAccessToken_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "NotAToken", token: "not a token"},
		{name: "TooFewSegments", token: "abc.def"},
		{name: "InvalidAlphabet", token: "a.%%%.b"},
		{name: "ClaimsNotJson", token: "e30." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + ".c2ln"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GetClaimsFromAccessToken(tt.token)
			require.Error(t, err)
		})
	}
}

func TestToken_UserID(t *testing.T) {
	tests := []struct {
		name   string
		claims TokenClaims
		want   string
	}{
		{
			name: "PreferredUsernameWins",
			claims: TokenClaims{
				PreferredUsername: "preferred@contoso.com",
				UPN:               "upn@contoso.com",
				Email:             "email@contoso.com",
				Oid:               "oid",
			},
			want: "preferred@contoso.com",
		},
		{
			name:   "FallsBackToUpn",
			claims: TokenClaims{UPN: "upn@contoso.com", Email: "email@contoso.com", Oid: "oid"},
			want:   "upn@contoso.com",
		},
		{
			name:   "FallsBackToEmail",
			claims: TokenClaims{Email: "email@contoso.com", Oid: "oid"},
			want:   "email@contoso.com",
		},
		{
			name:   "FallsBackToOid",
			claims: TokenClaims{Oid: "oid"},
			want:   "oid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Token{Claims: tt.claims}.UserID())
		})
	}
}

func TestGetTenantIdFromToken(t *testing.T) {
	token := makeAccessToken(t, TokenClaims{TenantId: "tenant"})

	tenant, err := GetTenantIdFromToken(token)
	require.NoError(t, err)
	require.Equal(t, "tenant", tenant)

	_, err = GetTenantIdFromToken(makeAccessToken(t, TokenClaims{}))
	require.Error(t, err)
}
