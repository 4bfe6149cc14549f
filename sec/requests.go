package sec

import "strings"

// ExtractBearerToken returns the credentials of an Authorization header.
// The scheme name is case-insensitive; anything else yields "".
func ExtractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
