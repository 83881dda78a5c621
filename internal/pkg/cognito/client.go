package cognito

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
)

// NewClient builds a Cognito user pool client using the default AWS credential chain.
func NewClient(ctx context.Context, region string) (*cip.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return cip.NewFromConfig(cfg), nil
}

// IssuerURL is the token issuer of a user pool, also the base of its JWKS document.
func IssuerURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}
