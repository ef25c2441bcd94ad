// Package sessiontoken issues and verifies the signed token the PKG
// protocol's /v2/{irma|request}/jwt/{token} endpoint hands back (§4.6).
// It is a minimal HMAC-SHA256 compact token rather than a full JWT
// implementation: the token never leaves the PKG's own trust boundary
// (it is only ever presented back to the same server's /key endpoint),
// so there is no interoperability requirement that would justify pulling
// in a JWT library.
package sessiontoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"

	"github.com/encryption4all/irmaseal/errs"
	"github.com/encryption4all/irmaseal/identity"
	"github.com/encryption4all/irmaseal/pkg/api"
)

// Claims is the payload a token commits to: the disclosed attribute
// conjunction and its proof status. The identity timestamp is supplied
// separately, as the /key endpoint's path parameter.
type Claims struct {
	Con         []identity.Attribute `json:"con"`
	ProofStatus api.ProofStatus      `json:"proof_status"`
}

var b64 = base64.RawURLEncoding

// Issue signs claims with key and returns the compact token string
// "<payload>.<signature>", both base64url-encoded.
func Issue(key []byte, claims Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", errs.Wrap(errs.FormatViolation, "sessiontoken: failed to encode claims", err)
	}
	sig := sign(key, payload)
	return b64.EncodeToString(payload) + "." + b64.EncodeToString(sig), nil
}

// Verify checks a token's signature against key and decodes its claims.
func Verify(key []byte, token string) (Claims, error) {
	var claims Claims
	dot := -1
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return claims, errs.New(errs.AuthenticationFailure, "sessiontoken: malformed token")
	}
	payload, err := b64.DecodeString(token[:dot])
	if err != nil {
		return claims, errs.Wrap(errs.AuthenticationFailure, "sessiontoken: malformed payload", err)
	}
	sig, err := b64.DecodeString(token[dot+1:])
	if err != nil {
		return claims, errs.Wrap(errs.AuthenticationFailure, "sessiontoken: malformed signature", err)
	}
	if subtle.ConstantTimeCompare(sign(key, payload), sig) != 1 {
		return claims, errs.New(errs.AuthenticationFailure, "sessiontoken: signature mismatch")
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return claims, errs.Wrap(errs.FormatViolation, "sessiontoken: failed to decode claims", err)
	}
	return claims, nil
}

func sign(key, payload []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(payload)
	return h.Sum(nil)
}
