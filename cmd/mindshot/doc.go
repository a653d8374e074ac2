// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Mindshot is a Telegram bot that turns voice messages into summarized,
timestamped notes in a per-user Google Doc.

Send the bot a voice message, then reply to it with /cursor: the bot
downloads the audio, transcribes and summarizes it with Gemini and appends
the result to your document. The document is created on first contact and
can be shared with other people using /add_editor.

# Usage

	$ mindshot [flags...]

Updates are received either by long polling the Telegram Bot API (the
default) or through an inbound webhook (-mode webhook), in which case the
webhook is registered on startup and HOST must point to the externally
reachable hostname.

Configuration comes from the environment (a .env file is loaded when
present):

  - TELEGRAM_TOKEN: Telegram Bot API token (required).
  - TELEGRAM_SECRET: secret token validating webhook requests.
  - GEMINI_KEY: Gemini API key (required).
  - GEMINI_MODEL: Gemini model to use.
  - GOOGLE_SERVICE_ACCOUNT_KEY: path to the service account key JSON file
    (default credentials.json).
  - REGISTRY_PATH: path to the user-document registry file (default
    user_docs.json).
  - ALLOWED_USERS: comma-separated Telegram user IDs allowed to use the bot.
  - HOST: externally reachable hostname, required in webhook mode.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/mindshot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
