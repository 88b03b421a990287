package ghauth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v66/github"
)

// AppTokenIssuer exchanges a GitHub App JWT for an installation access
// token. The app JWT is signed per installation-token request; GitHub caps
// its lifetime at 10 minutes and rejects clocks that run ahead, so iat is
// backdated by 60 seconds.
type AppTokenIssuer struct {
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	baseURL        string
}

// NewAppTokenIssuer loads the RSA private key from privateKeyPath and
// prepares an issuer for the given app installation. baseURL may be empty
// for api.github.com.
func NewAppTokenIssuer(appID, installationID int64, privateKeyPath, baseURL string) (*AppTokenIssuer, error) {
	pemBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read GitHub App private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GitHub App private key: %w", err)
	}
	return &AppTokenIssuer{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		baseURL:        baseURL,
	}, nil
}

// Issue signs an app JWT and calls the installation access token endpoint.
func (i *AppTokenIssuer) Issue(ctx context.Context) (Credential, error) {
	appJWT, err := i.signAppJWT(time.Now())
	if err != nil {
		return Credential{}, fmt.Errorf("failed to sign app JWT: %w", err)
	}

	client := github.NewClient(nil).WithAuthToken(appJWT)
	if i.baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(i.baseURL, "/") + "/")
		if err != nil {
			return Credential{}, fmt.Errorf("invalid GitHub API base URL: %w", err)
		}
		client.BaseURL = u
	}

	token, _, err := client.Apps.CreateInstallationToken(ctx, i.installationID, &github.InstallationTokenOptions{})
	if err != nil {
		return Credential{}, fmt.Errorf("failed to create installation token: %w", err)
	}

	return Credential{
		Value:     token.GetToken(),
		ExpiresAt: token.GetExpiresAt().Time,
	}, nil
}

func (i *AppTokenIssuer) signAppJWT(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(i.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.privateKey)
}
