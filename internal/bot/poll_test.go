// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.astrophena.name/mindshot/internal/api/telegram"
	"go.astrophena.name/mindshot/internal/testutil"
)

func TestPoll(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		offsets []int64
		sent    []string
	)
	handled := make(chan struct{}, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /bot"+testToken+"/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		var params struct {
			Offset int64 `json:"offset"`
		}
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Error(err)
		}
		mu.Lock()
		offsets = append(offsets, params.Offset)
		first := len(offsets) == 1
		mu.Unlock()
		if first {
			w.Write([]byte(`{"ok": true, "result": [{"update_id": 10, "message": {"message_id": 1, "from": {"id": 222}, "chat": {"id": 222}, "text": "/start"}}]}`))
			return
		}
		w.Write([]byte(`{"ok": true, "result": []}`))
	})
	mux.HandleFunc("POST /bot"+testToken+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var params struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Error(err)
		}
		mu.Lock()
		sent = append(sent, params.Text)
		mu.Unlock()
		select {
		case handled <- struct{}{}:
		default:
		}
		w.Write([]byte(`{"ok": true, "result": {"message_id": 2, "chat": {"id": 222}}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := New(Opts{
		Telegram: &telegram.Client{
			Token:      testToken,
			HTTPClient: srv.Client(),
			APIURL:     srv.URL,
		},
		AllowedUsers: []int64{allowedID},
		Logf:         t.Logf,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Poll(ctx) }()

	select {
	case <-handled:
	case <-time.After(10 * time.Second):
		t.Fatal("update wasn't handled in time")
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Poll() error = %v, want %v", err, context.Canceled)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Poll didn't stop in time")
	}

	mu.Lock()
	defer mu.Unlock()

	// The user 222 isn't allowed, so the reply is the rejection.
	testutil.AssertEqual(t, sent, []string{"❌ You are not authorized to use this bot."})

	// The offset advanced past the handled update.
	testutil.AssertEqual(t, offsets[0], int64(0))
	if len(offsets) > 1 {
		testutil.AssertEqual(t, offsets[1], int64(11))
	}
}
