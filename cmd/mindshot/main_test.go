// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.astrophena.name/mindshot/internal/cli"
	"go.astrophena.name/mindshot/internal/testutil"
)

const testToken = "1234567890:test"

// testMux fakes the Telegram Bot API and Google endpoints the engine talks to
// during initialization.
type testMux struct {
	mux *http.ServeMux

	mu          sync.Mutex
	webhookURLs []string
	sent        []string
}

func newTestMux(t *testing.T) *testMux {
	t.Helper()
	m := &testMux{mux: http.NewServeMux()}

	m.mux.HandleFunc("POST /bot"+testToken+"/getMe", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true, "result": {"id": 123, "username": "mindshot_bot", "first_name": "Mindshot"}}`))
	})
	m.mux.HandleFunc("POST /bot"+testToken+"/setWebhook", func(w http.ResponseWriter, r *http.Request) {
		var params struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Error(err)
		}
		m.mu.Lock()
		m.webhookURLs = append(m.webhookURLs, params.URL)
		m.mu.Unlock()
		w.Write([]byte(`{"ok": true, "result": true}`))
	})
	m.mux.HandleFunc("POST /bot"+testToken+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var params struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Error(err)
		}
		m.mu.Lock()
		m.sent = append(m.sent, params.Text)
		m.mu.Unlock()
		w.Write([]byte(`{"ok": true, "result": {"message_id": 1, "chat": {"id": 111}}}`))
	})
	m.mux.HandleFunc("POST /bot"+testToken+"/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true, "result": []}`))
	})

	// Google OAuth2 token endpoint.
	m.mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	// Docs API.
	m.mux.HandleFunc("POST /v1/documents", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"documentId": "doc123"})
	})

	return m
}

// testKeyFile writes a valid service account key to a temporary file and
// returns its path. The key's token endpoint resolves to the /token handler
// of the mock HTTP client.
func testKeyFile(t *testing.T) string {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	key, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "mindshot@example.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, key, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func testEnv(getenv map[string]string, args ...string) *cli.Env {
	return &cli.Env{
		Args:   args,
		Getenv: func(name string) string { return getenv[name] },
		Stdin:  strings.NewReader(""),
		Stdout: io.Discard,
		Stderr: io.Discard,
	}
}

func fullEnv(t *testing.T) map[string]string {
	return map[string]string{
		"TELEGRAM_TOKEN":             testToken,
		"TELEGRAM_SECRET":            "test-secret",
		"GEMINI_KEY":                 "gemini-key",
		"GOOGLE_SERVICE_ACCOUNT_KEY": testKeyFile(t),
		"REGISTRY_PATH":              filepath.Join(t.TempDir(), "user_docs.json"),
		"ALLOWED_USERS":              "111,222",
	}
}

func testEngine(t *testing.T) (*engine, *testMux) {
	t.Helper()
	m := newTestMux(t)
	e := &engine{
		httpc:         testutil.MockHTTPClient(m.mux),
		noServerStart: true,
	}
	return e, m
}

func TestRunRequiresConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		getenv  map[string]string
		wantVar string
	}{
		"missing telegram token": {
			getenv:  map[string]string{"GEMINI_KEY": "key"},
			wantVar: "TELEGRAM_TOKEN",
		},
		"missing gemini key": {
			getenv:  map[string]string{"TELEGRAM_TOKEN": testToken},
			wantVar: "GEMINI_KEY",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			e, _ := testEngine(t)
			err := e.Run(context.Background(), testEnv(tc.getenv))
			if !errors.Is(err, cli.ErrInvalidArgs) {
				t.Fatalf("Run() error = %v, want %v", err, cli.ErrInvalidArgs)
			}
			testutil.AssertContains(t, err.Error(), tc.wantVar)
		})
	}
}

func TestRunInvalidAllowedUsers(t *testing.T) {
	t.Parallel()

	e, _ := testEngine(t)
	env := fullEnv(t)
	env["ALLOWED_USERS"] = "111,not-a-number"
	err := e.Run(context.Background(), testEnv(env))
	if !errors.Is(err, cli.ErrInvalidArgs) {
		t.Fatalf("Run() error = %v, want %v", err, cli.ErrInvalidArgs)
	}
	testutil.AssertContains(t, err.Error(), "not-a-number")
}

func TestParseAllowedUsers(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in      string
		want    []int64
		wantErr bool
	}{
		"empty":              {"", nil, false},
		"single":             {"111", []int64{111}, false},
		"multiple":           {"111,222", []int64{111, 222}, false},
		"spaces and blanks":  {" 111 , ,222 ", []int64{111, 222}, false},
		"garbage":            {"abc", nil, true},
		"partially parsable": {"111,abc", nil, true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := parseAllowedUsers(tc.in)
			testutil.AssertEqual(t, err != nil, tc.wantErr)
			if !tc.wantErr {
				testutil.AssertEqual(t, got, tc.want)
			}
		})
	}
}

func TestEngineInit(t *testing.T) {
	t.Parallel()

	e, _ := testEngine(t)
	if err := e.Run(context.Background(), testEnv(fullEnv(t))); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, e.me.Username, "mindshot_bot")
	if e.bot == nil {
		t.Fatal("bot is not initialized")
	}

	// Root route.
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertEqual(t, w.Body.String(), "Bot is running!")

	// Health check.
	w = httptest.NewRecorder()
	e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertContains(t, w.Body.String(), "mindshot_bot")

	// Log buffer.
	w = httptest.NewRecorder()
	e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/log", nil))
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertContains(t, w.Body.String(), "Running as @mindshot_bot")
}

func TestWebhookThroughRoutes(t *testing.T) {
	t.Parallel()

	e, m := testEngine(t)
	if err := e.Run(context.Background(), testEnv(fullEnv(t))); err != nil {
		t.Fatal(err)
	}

	update := `{"update_id": 1, "message": {"message_id": 1, "from": {"id": 111}, "chat": {"id": 111}, "text": "hello"}}`
	r := httptest.NewRequest(http.MethodPost, "/telegram", strings.NewReader(update))
	r.Header.Set("X-Telegram-Bot-Api-Secret-Token", "test-secret")
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)

	testutil.AssertEqual(t, w.Code, http.StatusOK)
	m.mu.Lock()
	defer m.mu.Unlock()
	testutil.AssertEqual(t, m.sent, []string{"I'm here to help! Use /start to see instructions."})
}

func TestWebhookModeRequiresHost(t *testing.T) {
	t.Parallel()

	e, _ := testEngine(t)
	e.noServerStart = false
	e.mode = "webhook"
	err := e.Run(context.Background(), testEnv(fullEnv(t)))
	if !errors.Is(err, errNoHost) {
		t.Fatalf("Run() error = %v, want %v", err, errNoHost)
	}
}

func TestUnknownMode(t *testing.T) {
	t.Parallel()

	e, _ := testEngine(t)
	e.noServerStart = false
	e.mode = "carrier-pigeon"
	err := e.Run(context.Background(), testEnv(fullEnv(t)))
	if !errors.Is(err, errUnknownMode) {
		t.Fatalf("Run() error = %v, want %v", err, errUnknownMode)
	}
}

func TestWebhookModeSetsWebhook(t *testing.T) {
	t.Parallel()

	e, m := testEngine(t)
	e.noServerStart = false
	e.mode = "webhook"
	e.addr = "localhost:0"

	env := fullEnv(t)
	env["HOST"] = "mindshot.example.com"

	ctx, cancel := context.WithCancel(context.Background())
	e.ready = cancel

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx, testEnv(env)) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server didn't shut down in time")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	testutil.AssertEqual(t, m.webhookURLs, []string{"https://mindshot.example.com/telegram"})
}
