package domain

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signedToken(payload string) string {
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".c2ln"
}

func TestValidToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		valid bool
	}{
		{"well formed", signedToken(`{"user_id":"U1","exp":123}`), true},
		{"empty", "", false},
		{"two segments", "abc.def", false},
		{"four segments", "a.b.c.d", false},
		{"payload not base64", "head.!!!.sig", false},
		{"payload not json", signedToken("not json"), false},
		{"payload json scalar", signedToken(`"just a string"`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidToken(tt.token))
		})
	}
}

func TestTokenUserID(t *testing.T) {
	assert.Equal(t, "U1", TokenUserID(signedToken(`{"user_id":"U1"}`)))
	assert.Equal(t, "U2", TokenUserID(signedToken(`{"sub":"U2"}`)))
	assert.Equal(t, "", TokenUserID(signedToken(`{"exp":123}`)))
	assert.Equal(t, "", TokenUserID("garbage"))
}
