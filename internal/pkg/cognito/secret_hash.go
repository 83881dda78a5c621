package cognito

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	xerrors "objettrouve-service/internal/pkg/errors"
)

// Signer computes the SECRET_HASH Cognito requires from app clients that have a secret.
type Signer struct {
	clientID string
	secret   []byte
}

// NewSigner fails with a ConfigurationMissing error when either value is empty.
func NewSigner(clientID, clientSecret string) (*Signer, error) {
	if clientID == "" || clientSecret == "" {
		return nil, xerrors.New(xerrors.KindConfigurationMissing, "cognito client id and client secret are required")
	}
	return &Signer{clientID: clientID, secret: []byte(clientSecret)}, nil
}

// Sign returns Base64(HMAC-SHA256(secret, username + clientID)).
func (s *Signer) Sign(username string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(username + s.clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ClientID returns the app client id the signer was built for
func (s *Signer) ClientID() string {
	return s.clientID
}
