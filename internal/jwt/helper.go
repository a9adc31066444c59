package jwt

// getPayload extracts payload from token claims
func getPayload(claims map[string]any) (map[string]any, bool) {
	if payload, ok := claims["payload"].(map[string]any); ok {
		return payload, true
	}
	return nil, false
}

// getString safely extracts string value from payload
func getString(payload map[string]any, key string) string {
	if val, ok := payload[key].(string); ok {
		return val
	}
	return ""
}

// GetTokenID extracts JWT ID (jti) from token claims
func GetTokenID(claims map[string]any) string {
	if jti, ok := claims["jti"].(string); ok {
		return jti
	}
	return ""
}

// GetSubject extracts subject (sub) from token claims
func GetSubject(claims map[string]any) string {
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}

// IsAccessToken reports whether the claims belong to an access token.
func IsAccessToken(claims map[string]any) bool {
	return GetSubject(claims) == "access"
}

// GetPayloadString extracts a string payload field from token claims
func GetPayloadString(claims map[string]any, key string) string {
	if payload, ok := getPayload(claims); ok {
		return getString(payload, key)
	}
	return ""
}
