// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package serviceaccount obtains Google API access tokens using a service
// account key.
package serviceaccount

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.astrophena.name/mindshot/internal/request"

	"github.com/golang-jwt/jwt/v5"
)

// defaultTokenURI is the Google OAuth 2.0 token endpoint used when the key
// doesn't specify one.
const defaultTokenURI = "https://oauth2.googleapis.com/token"

// Key is a Google service account key, as downloaded from the Google Cloud
// console in JSON format.
type Key struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// LoadKey reads and parses a service account key from the JSON file at path.
func LoadKey(path string) (*Key, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseKey(b)
}

// ParseKey parses a service account key from JSON.
func ParseKey(b []byte) (*Key, error) {
	k := new(Key)
	if err := json.Unmarshal(b, k); err != nil {
		return nil, fmt.Errorf("serviceaccount: parsing key: %w", err)
	}
	if k.Type != "service_account" {
		return nil, fmt.Errorf("serviceaccount: unexpected key type %q", k.Type)
	}
	if k.ClientEmail == "" || k.PrivateKey == "" {
		return nil, errors.New("serviceaccount: key is missing client_email or private_key")
	}
	return k, nil
}

func (k *Key) tokenURI() string {
	if k.TokenURI != "" {
		return k.TokenURI
	}
	return defaultTokenURI
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// AccessToken exchanges a signed JWT assertion for an access token with the
// given scopes. The returned token is valid for expiresIn seconds.
//
// If httpc is nil, request.DefaultClient is used.
func (k *Key) AccessToken(ctx context.Context, httpc *http.Client, scopes ...string) (token string, expiresIn int, err error) {
	if len(scopes) == 0 {
		return "", 0, errors.New("serviceaccount: no scopes provided")
	}

	block, _ := pem.Decode([]byte(k.PrivateKey))
	if block == nil {
		return "", 0, errors.New("serviceaccount: private key is not in PEM format")
	}
	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Older keys are PKCS #1.
		priv, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return "", 0, fmt.Errorf("serviceaccount: parsing private key: %w", err)
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   k.ClientEmail,
		"sub":   k.ClientEmail,
		"aud":   k.tokenURI(),
		"scope": strings.Join(scopes, " "),
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(priv)
	if err != nil {
		return "", 0, fmt.Errorf("serviceaccount: signing JWT: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.tokenURI(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", request.UserAgent())

	if httpc == nil {
		httpc = request.DefaultClient
	}
	res, err := httpc.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return "", 0, err
	}
	if res.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("serviceaccount: token exchange failed: want 200, got %d: %s", res.StatusCode, b)
	}

	var tr tokenResponse
	if err := json.Unmarshal(b, &tr); err != nil {
		return "", 0, fmt.Errorf("serviceaccount: parsing token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, errors.New("serviceaccount: token response contains no access token")
	}
	return tr.AccessToken, tr.ExpiresIn, nil
}
