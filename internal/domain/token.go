package domain

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// ValidToken reports whether token has the 3-segment structural shape of a
// signed credential and a payload segment that decodes to a JSON object.
// The signature itself is the server's business; the client only refuses to
// persist or send things that cannot possibly be a credential.
func ValidToken(token string) bool {
	_, err := tokenClaims(token)
	return err == nil
}

// TokenUserID extracts the user id claim from the payload segment, trying
// the common claim names. Returns "" when absent or the token is malformed.
func TokenUserID(token string) string {
	claims, err := tokenClaims(token)
	if err != nil {
		return ""
	}
	for _, name := range []string{"user_id", "userId", "sub"} {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func tokenClaims(token string) (map[string]interface{}, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, ErrMalformedToken
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrMalformedToken
	}
	return claims, nil
}
