// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package serviceaccount

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.astrophena.name/mindshot/internal/testutil"

	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T, tokenURI string) (*Key, *rsa.PrivateKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	return &Key{
		Type:        "service_account",
		ClientEmail: "mindshot@example.iam.gserviceaccount.com",
		PrivateKey:  string(pemKey),
		TokenURI:    tokenURI,
	}, priv
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		json    string
		wantErr bool
	}{
		"valid": {
			json: `{"type": "service_account", "client_email": "a@b.c", "private_key": "key"}`,
		},
		"wrong type": {
			json:    `{"type": "authorized_user", "client_email": "a@b.c", "private_key": "key"}`,
			wantErr: true,
		},
		"missing private key": {
			json:    `{"type": "service_account", "client_email": "a@b.c"}`,
			wantErr: true,
		},
		"invalid JSON": {
			json:    `{`,
			wantErr: true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseKey([]byte(tc.json))
			testutil.AssertEqual(t, err != nil, tc.wantErr)
		})
	}
}

func TestLoadKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{"type": "service_account", "client_email": "a@b.c", "private_key": "key"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	k, err := LoadKey(path)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, k.ClientEmail, "a@b.c")

	if _, err := LoadKey(filepath.Join(t.TempDir(), "nonexistent.json")); err == nil {
		t.Fatal("expected an error for a nonexistent file")
	}
}

func TestAccessToken(t *testing.T) {
	t.Parallel()

	var (
		key      *Key
		priv     *rsa.PrivateKey
		gotScope string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		testutil.AssertEqual(t, r.Form.Get("grant_type"), "urn:ietf:params:oauth:grant-type:jwt-bearer")

		// Verify that the assertion is a valid JWT signed by our key.
		tok, err := jwt.Parse(r.Form.Get("assertion"), func(t *jwt.Token) (any, error) {
			return &priv.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		if err != nil {
			t.Errorf("parsing assertion: %v", err)
		}
		claims := tok.Claims.(jwt.MapClaims)
		testutil.AssertEqual(t, claims["iss"], key.ClientEmail)
		gotScope = claims["scope"].(string)

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	}))
	defer srv.Close()

	key, priv = testKey(t, srv.URL)

	tok, expiresIn, err := key.AccessToken(context.Background(), srv.Client(),
		"https://www.googleapis.com/auth/documents",
		"https://www.googleapis.com/auth/drive")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, tok, "test-token")
	testutil.AssertEqual(t, expiresIn, 3600)
	testutil.AssertEqual(t, gotScope, "https://www.googleapis.com/auth/documents https://www.googleapis.com/auth/drive")
}

func TestAccessTokenErrors(t *testing.T) {
	t.Parallel()

	t.Run("no scopes", func(t *testing.T) {
		t.Parallel()
		key, _ := testKey(t, "http://localhost")
		if _, _, err := key.AccessToken(context.Background(), nil); err == nil {
			t.Fatal("expected an error, got none")
		}
	})

	t.Run("bad private key", func(t *testing.T) {
		t.Parallel()
		key, _ := testKey(t, "http://localhost")
		key.PrivateKey = "not a PEM"
		if _, _, err := key.AccessToken(context.Background(), nil, "scope"); err == nil {
			t.Fatal("expected an error, got none")
		}
	})

	t.Run("token endpoint failure", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid_grant", http.StatusBadRequest)
		}))
		defer srv.Close()
		key, _ := testKey(t, srv.URL)
		_, _, err := key.AccessToken(context.Background(), srv.Client(), "scope")
		if err == nil {
			t.Fatal("expected an error, got none")
		}
		testutil.AssertContains(t, err.Error(), "invalid_grant")
	})
}
