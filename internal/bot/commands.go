// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.astrophena.name/mindshot/internal/api/google/docs"
	"go.astrophena.name/mindshot/internal/api/telegram"
)

// dispatch routes the message to the matching handler.
func (b *Bot) dispatch(ctx context.Context, msg *telegram.Message) error {
	if msg.Voice != nil {
		return b.handleVoice(ctx, msg)
	}

	cmd, args := parseCommand(msg.Text)
	switch cmd {
	case "/start", "/help":
		return b.handleStart(ctx, msg)
	case "/add_editor":
		return b.handleAddEditor(ctx, msg, args)
	case "/list_editors":
		return b.handleListEditors(ctx, msg)
	case "/remove_editor":
		return b.handleRemoveEditor(ctx, msg)
	case "/cursor":
		return b.handleCursor(ctx, msg)
	}

	return b.reply(ctx, msg, "I'm here to help! Use /start to see instructions.")
}

// parseCommand splits the message text into a command and its arguments. A
// "/cmd@botname" mention form is reduced to "/cmd". For non-command text, cmd
// is empty.
func parseCommand(text string) (cmd string, args []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd, _, _ = strings.Cut(fields[0], "@")
	return cmd, fields[1:]
}

// userDoc returns the ID of the user's document, creating the document if the
// user doesn't have one yet.
func (b *Bot) userDoc(ctx context.Context, user *telegram.User) (string, error) {
	return b.registry.GetOrCreate(ctx, user.ID, func(ctx context.Context) (string, error) {
		name := user.Username
		if name == "" {
			name = strconv.FormatInt(user.ID, 10)
		}
		return b.docsc.CreateDocument(ctx, "Voice Notes for "+name)
	})
}

func (b *Bot) handleStart(ctx context.Context, msg *telegram.Message) error {
	docID, err := b.userDoc(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.reply(ctx, msg, "👋 Welcome to MindShotBot!\n\n"+
		"Here's how to use me:\n"+
		"1. Send me a voice message\n"+
		"2. Reply to it with /cursor\n"+
		"3. I'll transcribe it, format it, and save it to your doc!\n\n"+
		"Commands:\n"+
		"/add_editor <email> - Add an editor to the document\n"+
		"/remove_editor - Show list of editors to remove\n"+
		"/list_editors - Show all current editors\n\n"+
		"📝 Your document:\n"+docs.DocumentURL(docID)+"\n\n"+
		"Let's try it - send me a voice message!")
}

func (b *Bot) handleAddEditor(ctx context.Context, msg *telegram.Message, args []string) error {
	docID, err := b.userDoc(ctx, msg.From)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return b.reply(ctx, msg, "Usage: /add_editor <email>")
	}
	email := args[0]
	if err := b.docsc.AddEditor(ctx, docID, email); err != nil {
		return b.reply(ctx, msg, fmt.Sprintf("❌ Failed to add editor: %v", err))
	}
	return b.reply(ctx, msg, fmt.Sprintf("✅ Successfully added %s as an editor to your document!", email))
}

func (b *Bot) handleListEditors(ctx context.Context, msg *telegram.Message) error {
	docID, err := b.userDoc(ctx, msg.From)
	if err != nil {
		return err
	}
	editors, err := b.docsc.Editors(ctx, docID)
	if err != nil {
		return b.reply(ctx, msg, fmt.Sprintf("❌ Failed to list editors: %v", err))
	}
	if len(editors) == 0 {
		return b.reply(ctx, msg, "No editors found.")
	}
	var list strings.Builder
	for _, e := range editors {
		fmt.Fprintf(&list, "• %s\n", e.EmailAddress)
	}
	return b.reply(ctx, msg, fmt.Sprintf("📝 Current editors:\n%s\nUse /remove_editor to see numbered list for removal.", list.String()))
}

// handleRemoveEditor only shows the numbered list of editors. Picking a number
// to actually revoke access needs conversation state that the bot doesn't
// keep yet.
//
// TODO: implement removal by replying with a number.
func (b *Bot) handleRemoveEditor(ctx context.Context, msg *telegram.Message) error {
	docID, err := b.userDoc(ctx, msg.From)
	if err != nil {
		return err
	}
	editors, err := b.docsc.Editors(ctx, docID)
	if err != nil {
		return b.reply(ctx, msg, fmt.Sprintf("❌ Failed to remove editor: %v", err))
	}
	if len(editors) == 0 {
		return b.reply(ctx, msg, "No editors to remove.")
	}
	var list strings.Builder
	for i, e := range editors {
		fmt.Fprintf(&list, "%d. %s\n", i+1, e.EmailAddress)
	}
	return b.reply(ctx, msg, "Send the number of the editor to remove:\n"+list.String()+"\nRemoving editors isn't implemented yet.")
}

func (b *Bot) handleVoice(ctx context.Context, msg *telegram.Message) error {
	// Make sure the user has a document, so the /cursor that follows doesn't
	// have to create one mid-pipeline.
	if _, err := b.userDoc(ctx, msg.From); err != nil {
		return err
	}
	return b.reply(ctx, msg, "I received your voice message! Reply to it with /cursor to process it.")
}
