// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package bot implements the core logic of the Mindshot bot.
//
// It is responsible for handling Telegram updates received over a webhook or
// by long polling, checking that the sender is allowed to use the bot,
// dispatching commands and running the voice note pipeline: download,
// transcribe, summarize, append to the user's Google Doc.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"go.astrophena.name/mindshot/internal/api/google/docs"
	"go.astrophena.name/mindshot/internal/api/google/gemini"
	"go.astrophena.name/mindshot/internal/api/telegram"
	"go.astrophena.name/mindshot/internal/logger"
	"go.astrophena.name/mindshot/internal/registry"
	"go.astrophena.name/mindshot/internal/web"
)

const defaultModel = "gemini-2.0-flash"

// Bot represents a Mindshot bot instance.
type Bot struct {
	tg       *telegram.Client
	geminic  *gemini.Client
	docsc    *docs.Client
	registry *registry.Registry

	allowed  map[int64]bool
	tgSecret string
	model    string
	tempDir  string

	logf logger.Logf
	now  func() time.Time
}

// Opts is the options for creating a new Bot.
type Opts struct {
	// Telegram is the client for the Telegram Bot API.
	Telegram *telegram.Client
	// Gemini is the client for the Gemini API, used for transcription and
	// summarization.
	Gemini *gemini.Client
	// Docs is the client for the Google Docs and Drive APIs.
	Docs *docs.Client
	// Registry maps users to their documents.
	Registry *registry.Registry
	// AllowedUsers is the list of Telegram user IDs allowed to use the bot.
	AllowedUsers []int64
	// Secret is the Telegram Bot API webhook secret token.
	Secret string
	// Model is the Gemini model to use. Defaults to gemini-2.0-flash.
	Model string
	// TempDir is the directory for temporary audio files. Defaults to
	// os.TempDir().
	TempDir string
	// Logf is used for logging. Defaults to log.Printf.
	Logf logger.Logf
	// Now returns the current time. Used in tests.
	Now func() time.Time
}

// New creates a new Bot instance.
func New(opts Opts) *Bot {
	b := &Bot{
		tg:       opts.Telegram,
		geminic:  opts.Gemini,
		docsc:    opts.Docs,
		registry: opts.Registry,
		allowed:  make(map[int64]bool),
		tgSecret: opts.Secret,
		model:    opts.Model,
		tempDir:  opts.TempDir,
		logf:     opts.Logf,
		now:      opts.Now,
	}
	for _, id := range opts.AllowedUsers {
		b.allowed[id] = true
	}
	if b.model == "" {
		b.model = defaultModel
	}
	if b.tempDir == "" {
		b.tempDir = os.TempDir()
	}
	if b.logf == nil {
		b.logf = log.Printf
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

func (b *Bot) authorized(userID int64) bool { return b.allowed[userID] }

// HandleWebhook handles a Telegram webhook request.
func (b *Bot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != b.tgSecret {
		web.RespondJSONError(b.logf, w, web.ErrNotFound)
		return
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		web.RespondJSONError(b.logf, w, fmt.Errorf("%w: %v", web.ErrBadRequest, err))
		return
	}

	if err := b.HandleUpdate(r.Context(), &update); err != nil {
		// The update was received fine, only handling failed. Acknowledge it
		// anyway so Telegram doesn't redeliver it.
		b.logf("Handling update %d failed: %v", update.ID, err)
	}

	web.RespondJSON(w, statusOK)
}

var statusOK = map[string]string{
	"status": "ok",
}

// HandleUpdate handles a single Telegram update, whatever transport it came
// from.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return nil
	}

	if !b.authorized(msg.From.ID) {
		return b.reply(ctx, msg, "❌ You are not authorized to use this bot.")
	}

	return b.dispatch(ctx, msg)
}

func (b *Bot) reply(ctx context.Context, msg *telegram.Message, text string) error {
	if _, err := b.tg.SendMessage(ctx, msg.Chat.ID, text); err != nil {
		return fmt.Errorf("replying to message %d: %w", msg.ID, err)
	}
	return nil
}
