// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"go.astrophena.name/mindshot/internal/api/google/docs"
	"go.astrophena.name/mindshot/internal/api/google/gemini"
	"go.astrophena.name/mindshot/internal/api/telegram"
)

const (
	transcribePrompt = "Transcribe this voice message. Return only the transcribed text, without any commentary."
	summarizePrompt  = "Summarize the following text as clear, concise bullet-point notes. Add only the most important information."
)

// handleCursor processes a /cursor command sent as a reply to a voice
// message: the voice note is downloaded, transcribed, summarized and appended
// to the user's document.
func (b *Bot) handleCursor(ctx context.Context, msg *telegram.Message) error {
	docID, err := b.userDoc(ctx, msg.From)
	if err != nil {
		return err
	}

	if msg.ReplyTo == nil || msg.ReplyTo.Voice == nil {
		return b.reply(ctx, msg, "❌ Please reply to a voice message with /cursor")
	}

	if err := b.processVoice(ctx, msg.From.ID, msg.ReplyTo.Voice, docID); err != nil {
		b.logf("Processing voice note from user %d failed: %v", msg.From.ID, err)
		return b.reply(ctx, msg, fmt.Sprintf("❌ Error transcribing or saving: %v", err))
	}

	return b.reply(ctx, msg, "✅ Voice note processed!\n📝 View your notes: "+docs.DocumentURL(docID))
}

// processVoice runs the voice note pipeline. The audio is staged in a
// temporary file that is removed on every exit path. A failure at any step
// aborts the rest: nothing is appended to the document.
func (b *Bot) processVoice(ctx context.Context, userID int64, voice *telegram.Voice, docID string) error {
	file, err := b.tg.GetFile(ctx, voice.FileID)
	if err != nil {
		return fmt.Errorf("getting file info: %w", err)
	}
	audio, err := b.tg.DownloadFile(ctx, file.FilePath)
	if err != nil {
		return fmt.Errorf("downloading voice note: %w", err)
	}

	path := filepath.Join(b.tempDir, fmt.Sprintf("voice_%d.ogg", userID))
	if err := os.WriteFile(path, audio, 0o600); err != nil {
		return fmt.Errorf("writing voice note to disk: %w", err)
	}
	defer os.Remove(path)

	transcript, err := b.transcribe(ctx, path, voice.MimeType)
	if err != nil {
		return fmt.Errorf("transcribing: %w", err)
	}
	summary, err := b.summarize(ctx, transcript)
	if err != nil {
		return fmt.Errorf("summarizing: %w", err)
	}

	entry := formatEntry(b.now(), summary)
	if err := b.docsc.InsertText(ctx, docID, entry); err != nil {
		return err
	}

	return nil
}

// transcribe converts the audio file at path to text.
func (b *Bot) transcribe(ctx context.Context, path, mimeType string) (string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = "audio/ogg"
	}

	resp, err := b.geminic.GenerateContent(ctx, b.model, gemini.GenerateContentParams{
		Contents: []*gemini.Content{{
			Parts: []*gemini.Part{
				{InlineData: &gemini.InlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(audio),
				}},
				{Text: transcribePrompt},
			},
		}},
	})
	if err != nil {
		return "", err
	}
	return resp.Text()
}

// summarize condenses the transcript into bullet-point notes.
func (b *Bot) summarize(ctx context.Context, transcript string) (string, error) {
	resp, err := b.geminic.GenerateContent(ctx, b.model, gemini.GenerateContentParams{
		SystemInstruction: &gemini.Content{
			Parts: []*gemini.Part{{Text: summarizePrompt}},
		},
		Contents: []*gemini.Content{{
			Parts: []*gemini.Part{{Text: transcript}},
		}},
	})
	if err != nil {
		return "", err
	}
	return resp.Text()
}
