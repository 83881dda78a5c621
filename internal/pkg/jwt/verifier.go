// internal/pkg/jwt/verifier.go
package jwt

import (
	"context"
	"fmt"

	"objettrouve-service/internal/domain/auth"
	xerrors "objettrouve-service/internal/pkg/errors"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier checks ID token signatures against the issuer's published keys
// before projecting the claims into an Identity.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier fetches and caches the JWKS at <issuer>/.well-known/jwks.json.
// ctx bounds the lifetime of background key fetches.
func NewVerifier(ctx context.Context, issuer, clientID string) *Verifier {
	keySet := oidc.NewRemoteKeySet(ctx, issuer+"/.well-known/jwks.json")
	return NewVerifierWithKeySet(issuer, clientID, keySet)
}

// NewVerifierWithKeySet builds a verifier over an explicit key set
func NewVerifierWithKeySet(issuer, clientID string, keySet oidc.KeySet) *Verifier {
	return &Verifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// VerifyIdentity validates signature, issuer, audience and expiry of an ID token.
func (v *Verifier) VerifyIdentity(ctx context.Context, rawIDToken string) (*auth.Identity, error) {
	token, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, xerrors.WrapKind(xerrors.KindUnauthenticated, "id token rejected", err)
	}

	var claims IdentityClaims
	if err := token.Claims(&claims); err != nil {
		return nil, xerrors.WrapKind(xerrors.KindTokenMalformed, "failed to decode id token claims", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("id token has no subject: %w", ErrMalformedToken)
	}

	return claims.Identity(), nil
}
