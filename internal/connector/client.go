// ABOUTME: HTTP client for the chat platform's directory and conversation APIs.
// ABOUTME: Client-credentials token source, identity lookup, continue/create conversation.

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config holds the platform application identity and endpoint overrides.
// TokenURL and DirectoryURL default to the public platform endpoints and
// exist as fields so tests can point the client at local servers.
type Config struct {
	AppID       string
	AppPassword string
	TenantID    string

	TokenURL     string
	DirectoryURL string
}

// Client is the chat platform connector. It maintains its own cached
// client-credentials token source for the directory and conversation APIs.
type Client struct {
	cfg          Config
	directoryURL string
	http         *http.Client
	tokens       oauth2.TokenSource
	logger       *slog.Logger
}

// New creates a connector client.
func New(cfg Config, logger *slog.Logger) *Client {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}
	directoryURL := cfg.DirectoryURL
	if directoryURL == "" {
		directoryURL = "https://graph.microsoft.com/v1.0"
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.AppPassword,
		TokenURL:     tokenURL,
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}

	return &Client{
		cfg:          cfg,
		directoryURL: strings.TrimSuffix(directoryURL, "/"),
		http:         &http.Client{},
		tokens:       cc.TokenSource(context.Background()),
		logger:       logger.With("component", "connector"),
	}
}

// ResolveUser looks up a user's identity in the platform directory by
// object id. Returns id, display name, and mail (falling back to the
// principal name when mail is unset).
func (c *Client) ResolveUser(ctx context.Context, objectID string) (*UserInfo, error) {
	reqURL := fmt.Sprintf("%s/users/%s?$select=id,displayName,mail,userPrincipalName",
		c.directoryURL, url.PathEscape(objectID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating directory request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("directory lookup", resp)
	}

	var user struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decoding directory response: %w", err)
	}

	email := user.Mail
	if email == "" {
		email = user.UserPrincipalName
	}

	return &UserInfo{ID: user.ID, Name: user.DisplayName, Email: email}, nil
}

// ContinueConversation delivers a message activity into the conversation
// the reference points at.
func (c *Client) ContinueConversation(ctx context.Context, ref *ConversationRef, text, textFormat string) error {
	act := Activity{
		Type:         ActivityMessage,
		ID:           uuid.NewString(),
		ChannelID:    ref.ChannelID,
		ServiceURL:   ref.ServiceURL,
		From:         ref.Bot,
		Recipient:    ref.User,
		Conversation: ref.Conversation,
		Text:         text,
		TextFormat:   textFormat,
	}

	reqURL := fmt.Sprintf("%s/v3/conversations/%s/activities",
		strings.TrimSuffix(ref.ServiceURL, "/"), url.PathEscape(ref.Conversation.ID))

	resp, err := c.postJSON(ctx, reqURL, act)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("sending activity", resp)
	}

	c.logger.Debug("activity delivered", "conversation", ref.Conversation.ID)
	return nil
}

// CreateConversation opens a 1:1 conversation with the given user and
// returns its id. When the platform answers with a conflict because the
// conversation already exists, the id from the conflict body is returned
// with no error — the caller just sends into the existing conversation.
func (c *Client) CreateConversation(ctx context.Context, ref *ConversationRef, userID string) (string, error) {
	params := map[string]any{
		"isGroup":  false,
		"tenantId": c.cfg.TenantID,
		"bot":      ref.Bot,
		"members":  []Account{{ID: userID}},
	}

	reqURL := strings.TrimSuffix(ref.ServiceURL, "/") + "/v3/conversations"

	resp, err := c.postJSON(ctx, reqURL, params)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var created struct {
		ID string `json:"id"`
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.Unmarshal(body, &created); err != nil {
			return "", fmt.Errorf("decoding conversation response: %w", err)
		}
		return created.ID, nil

	case resp.StatusCode == http.StatusConflict:
		// The conflict body names the existing conversation
		if json.Unmarshal(body, &created) == nil && created.ID != "" {
			c.logger.Debug("conversation already exists", "conversation", created.ID, "user", userID)
			return created.ID, nil
		}
		return "", fmt.Errorf("creating conversation: conflict without conversation id: %s", strings.TrimSpace(string(body)))

	default:
		return "", fmt.Errorf("creating conversation: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// postJSON issues an authorized POST with a JSON body.
func (c *Client) postJSON(ctx context.Context, reqURL string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return resp, nil
}

// authorize attaches a bearer token from the cached token source.
func (c *Client) authorize(req *http.Request) error {
	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("acquiring platform token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

// statusError reads the response body into a diagnostic error.
func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
