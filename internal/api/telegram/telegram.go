// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram provides a minimal client for the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.astrophena.name/mindshot/internal/request"
)

// DefaultAPIURL is the default URL of the Telegram Bot API.
const DefaultAPIURL = "https://api.telegram.org"

// Client is a Telegram Bot API client.
type Client struct {
	// Token is the bot token obtained from BotFather.
	Token string
	// HTTPClient is an optional HTTP client to use. If nil,
	// request.DefaultClient is used.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that replaces sensitive
	// information in errors.
	Scrubber *strings.Replacer
	// APIURL overrides the Bot API URL. Used in tests.
	APIURL string
}

func (c *Client) apiURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	return DefaultAPIURL
}

// apiResponse is a response envelope that wraps every Bot API method result.
type apiResponse[Result any] struct {
	OK          bool   `json:"ok"`
	Result      Result `json:"result"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

// call invokes the Bot API method with the given arguments and returns its
// result.
func call[Result any](ctx context.Context, c *Client, method string, args any) (Result, error) {
	resp, err := request.MakeJSON[apiResponse[Result]](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        c.apiURL() + "/bot" + c.Token + "/" + method,
		Body:       args,
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		var zero Result
		return zero, err
	}
	if !resp.OK {
		var zero Result
		return zero, fmt.Errorf("telegram: %s failed: %s (error code %d)", method, resp.Description, resp.ErrorCode)
	}
	return resp.Result, nil
}

// User represents a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Chat represents a Telegram chat.
type Chat struct {
	ID int64 `json:"id"`
}

// Voice represents a voice note.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	MimeType string `json:"mime_type"`
}

// Message represents a message.
type Message struct {
	ID      int64    `json:"message_id"`
	From    *User    `json:"from"`
	Chat    Chat     `json:"chat"`
	Text    string   `json:"text"`
	Voice   *Voice   `json:"voice"`
	ReplyTo *Message `json:"reply_to_message"`
}

// Update represents an incoming update.
type Update struct {
	ID      int64    `json:"update_id"`
	Message *Message `json:"message"`
}

// File represents a file stored on Telegram servers, ready to be downloaded.
type File struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
	FilePath string `json:"file_path"`
}

// GetMe returns basic information about the bot.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	return call[User](ctx, c, "getMe", nil)
}

type sendMessageParams struct {
	ChatID             int64              `json:"chat_id"`
	Text               string             `json:"text"`
	LinkPreviewOptions linkPreviewOptions `json:"link_preview_options"`
}

type linkPreviewOptions struct {
	IsDisabled bool `json:"is_disabled"`
}

// SendMessage sends a text message to the chat. Link previews are disabled.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (Message, error) {
	return call[Message](ctx, c, "sendMessage", sendMessageParams{
		ChatID:             chatID,
		Text:               text,
		LinkPreviewOptions: linkPreviewOptions{IsDisabled: true},
	})
}

// GetFile returns information about a file, including the path needed to
// download it with [Client.DownloadFile].
func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	return call[File](ctx, c, "getFile", map[string]string{"file_id": fileID})
}

// DownloadFile downloads the file at the path previously returned by
// [Client.GetFile].
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	url := c.apiURL() + "/file/bot" + c.Token + "/" + filePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", request.UserAgent())
	httpc := c.HTTPClient
	if httpc == nil {
		httpc = request.DefaultClient
	}
	res, err := httpc.Do(req)
	if err != nil {
		return nil, c.scrub(err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, c.scrub(err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, c.scrub(fmt.Errorf("telegram: file download failed: want 200, got %d: %s", res.StatusCode, b))
	}
	return b, nil
}

func (c *Client) scrub(err error) error {
	if err == nil || c.Scrubber == nil {
		return err
	}
	return fmt.Errorf("%s", c.Scrubber.Replace(err.Error()))
}

type getUpdatesParams struct {
	Offset         int64    `json:"offset"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// GetUpdates long polls for incoming updates, starting at offset. Only message
// updates are requested. Timeout is in seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	return call[[]Update](ctx, c, "getUpdates", getUpdatesParams{
		Offset:         offset,
		Timeout:        timeout,
		AllowedUpdates: []string{"message"},
	})
}

type setWebhookParams struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// SetWebhook configures the bot to receive updates via an outgoing webhook at
// url. Telegram will send the secret token in the
// X-Telegram-Bot-Api-Secret-Token header of every webhook request.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	_, err := call[bool](ctx, c, "setWebhook", setWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: []string{"message"},
	})
	return err
}
