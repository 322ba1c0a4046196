package portal

import "encoding/base64"

// CredentialEncoder maps a username and password to the opaque credential
// string the portal's login form expects. The portal's algorithm is
// institution-specific; swap this out without touching the login flow.
type CredentialEncoder func(username, password string) string

// EncodeCredentials is the observed portal encoding: base64 of each
// credential joined by a literal "%%%".
func EncodeCredentials(username, password string) string {
	return b64(username) + "%%%" + b64(password)
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
