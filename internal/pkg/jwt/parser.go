// internal/pkg/jwt/parser.go
package jwt

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"objettrouve-service/internal/domain/auth"
	xerrors "objettrouve-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when a token is not three segments or its payload is not a JSON object.
var ErrMalformedToken = xerrors.New(xerrors.KindTokenMalformed, "malformed token")

var segmentDecoder = jwt.NewParser()

// ParseIdentity decodes the payload segment of a compact token and projects it
// into an Identity. The signature is NOT verified; use Verifier for that.
func ParseIdentity(token string) (*auth.Identity, error) {
	claims, err := ParseClaims(token)
	if err != nil {
		return nil, err
	}
	return claims.Identity(), nil
}

// ParseClaims decodes the payload segment without verifying the signature.
func ParseClaims(token string) (*IdentityClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}

	payload, err := segmentDecoder.DecodeSegment(parts[1])
	if err != nil {
		return nil, xerrors.WrapKind(xerrors.KindTokenMalformed, "payload is not base64url", err)
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, ErrMalformedToken
	}

	var claims IdentityClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, xerrors.WrapKind(xerrors.KindTokenMalformed, "payload is not a JSON object", err)
	}

	return &claims, nil
}

// IsMalformed reports whether err came from token decoding
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedToken) || xerrors.KindOf(err) == xerrors.KindTokenMalformed
}
