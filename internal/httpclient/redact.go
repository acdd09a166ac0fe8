package httpclient

import "net/url"

// secretParams are query keys whose values never reach logs.
var secretParams = map[string]struct{}{
	"api_key":      {},
	"apikey":       {},
	"token":        {},
	"access_token": {},
	"key":          {},
	"secret":       {},
	"signature":    {},
	"sig":          {},
}

// RedactURL renders u with secret query values replaced by "REDACTED".
// Matching is case-sensitive on the canonical lowercase keys the providers
// use. The input URL is not modified.
func RedactURL(u *url.URL) string {
	q := u.Query()
	changed := false
	for key := range q {
		if _, secret := secretParams[key]; secret {
			q.Set(key, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return u.String()
	}
	clone := *u
	clone.RawQuery = q.Encode()
	return clone.String()
}
