package fundapi

import "encoding/base64"

// EncodeCredentials builds the Basic auth value for the token endpoint:
// base64 of "apiKey:clientSecret".
func EncodeCredentials(apiKey, clientSecret string) string {
	return base64.StdEncoding.EncodeToString([]byte(apiKey + ":" + clientSecret))
}
