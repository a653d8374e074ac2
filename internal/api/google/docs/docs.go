// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package docs provides a client for the Google Docs and Google Drive APIs,
// covering the small surface needed to append text to documents and manage
// who can edit them.
package docs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.astrophena.name/mindshot/internal/api/google/serviceaccount"
	"go.astrophena.name/mindshot/internal/request"
)

// API scopes requested for every access token.
var scopes = []string{
	"https://www.googleapis.com/auth/documents",
	"https://www.googleapis.com/auth/drive",
}

const (
	defaultDocsAPIURL  = "https://docs.googleapis.com/v1"
	defaultDriveAPIURL = "https://www.googleapis.com/drive/v3"
)

// Client is a Google Docs and Drive API client authenticated with a service
// account key.
type Client struct {
	// Key is the service account key used to obtain access tokens.
	Key *serviceaccount.Key
	// HTTPClient is an optional HTTP client to use. If nil,
	// request.DefaultClient is used.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that replaces sensitive
	// information in errors.
	Scrubber *strings.Replacer

	// DocsAPIURL and DriveAPIURL override API URLs. Used in tests.
	DocsAPIURL  string
	DriveAPIURL string

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func (c *Client) docsAPIURL() string {
	if c.DocsAPIURL != "" {
		return c.DocsAPIURL
	}
	return defaultDocsAPIURL
}

func (c *Client) driveAPIURL() string {
	if c.DriveAPIURL != "" {
		return c.DriveAPIURL
	}
	return defaultDriveAPIURL
}

// accessToken returns a cached access token, refreshing it when it's about to
// expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.tokenExp) > 5*time.Minute {
		return c.token, nil
	}

	token, expiresIn, err := c.Key.AccessToken(ctx, c.HTTPClient, scopes...)
	if err != nil {
		return "", err
	}
	c.token = token
	c.tokenExp = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return c.token, nil
}

func makeAuthorized[Response any](ctx context.Context, c *Client, method, url string, body any) (Response, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		var zero Response
		return zero, err
	}
	return request.MakeJSON[Response](ctx, request.Params{
		Method: method,
		URL:    url,
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
		},
		Body:       body,
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
}

type document struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
}

// CreateDocument creates an empty document with the given title and returns
// its ID.
func (c *Client) CreateDocument(ctx context.Context, title string) (string, error) {
	doc, err := makeAuthorized[document](ctx, c, http.MethodPost, c.docsAPIURL()+"/documents", map[string]string{
		"title": title,
	})
	if err != nil {
		return "", fmt.Errorf("docs: creating document: %w", err)
	}
	return doc.DocumentID, nil
}

type batchUpdateRequest struct {
	Requests []updateRequest `json:"requests"`
}

type updateRequest struct {
	InsertText *insertTextRequest `json:"insertText,omitempty"`
}

type insertTextRequest struct {
	Location location `json:"location"`
	Text     string   `json:"text"`
}

type location struct {
	Index int `json:"index"`
}

// InsertText inserts text at the beginning of the document body, followed by a
// blank line. Newer entries always end up above older ones.
func (c *Client) InsertText(ctx context.Context, documentID, text string) error {
	_, err := makeAuthorized[request.IgnoreResponse](ctx, c, http.MethodPost,
		c.docsAPIURL()+"/documents/"+documentID+":batchUpdate",
		batchUpdateRequest{
			Requests: []updateRequest{{
				InsertText: &insertTextRequest{
					Location: location{Index: 1},
					Text:     text + "\n\n",
				},
			}},
		})
	if err != nil {
		return fmt.Errorf("docs: inserting text into document %s: %w", documentID, err)
	}
	return nil
}

// Permission represents a Drive permission on a file.
type Permission struct {
	ID           string `json:"id"`
	EmailAddress string `json:"emailAddress"`
	Role         string `json:"role"`
}

// AddEditor shares the document with email, granting write access. The person
// receives a notification email from Google.
func (c *Client) AddEditor(ctx context.Context, documentID, email string) error {
	u := c.driveAPIURL() + "/files/" + documentID + "/permissions?" + url.Values{
		"sendNotificationEmail": {"true"},
	}.Encode()
	_, err := makeAuthorized[Permission](ctx, c, http.MethodPost, u, map[string]string{
		"type":         "user",
		"role":         "writer",
		"emailAddress": email,
	})
	if err != nil {
		return fmt.Errorf("docs: sharing document %s with %s: %w", documentID, email, err)
	}
	return nil
}

type permissionList struct {
	Permissions []Permission `json:"permissions"`
}

// Editors returns the people who have write access to the document. Owners
// and viewers are not included.
func (c *Client) Editors(ctx context.Context, documentID string) ([]Permission, error) {
	u := c.driveAPIURL() + "/files/" + documentID + "/permissions?" + url.Values{
		"fields": {"permissions(id,emailAddress,role)"},
	}.Encode()
	list, err := makeAuthorized[permissionList](ctx, c, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("docs: listing permissions of document %s: %w", documentID, err)
	}
	var editors []Permission
	for _, p := range list.Permissions {
		if p.Role == "writer" {
			editors = append(editors, p)
		}
	}
	return editors, nil
}

// DocumentURL returns a shareable link to the document.
func DocumentURL(documentID string) string {
	return "https://docs.google.com/document/d/" + documentID + "/edit?usp=sharing"
}
