package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"graphrelay/internal/types"
)

// MessagesClient fetches mail resources named by notification resource
// paths and normalizes them for downstream delivery.
type MessagesClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewMessagesClient creates a client rooted at the remote API base URL.
func NewMessagesClient(httpClient *http.Client, baseURL string, logger *slog.Logger, opts ...BaseClientOption) *MessagesClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessagesClient{
		base:    NewBaseClient(httpClient, "graph-messages", DefaultRetryPolicy(), opts...),
		baseURL: baseURL,
		logger:  logger,
	}
}

// ParseMessageResource splits a notification resource path of the form
// "users/{userID}/messages/{messageID}" (with or without a leading slash)
// into its identifiers.
func ParseMessageResource(resource string) (userID, messageID string, err error) {
	parts := strings.Split(strings.Trim(resource, "/"), "/")
	if len(parts) != 4 || !strings.EqualFold(parts[0], "users") || !strings.EqualFold(parts[2], "messages") {
		return "", "", types.NewAppError(types.ErrCodeValidationResource,
			fmt.Sprintf("resource %q is not a users/{id}/messages/{id} path", resource), nil)
	}
	return parts[1], parts[3], nil
}

// wireMessage mirrors the remote API's message shape; only the fields the
// forwarder needs are decoded.
type wireMessage struct {
	ID               string          `json:"id"`
	Subject          string          `json:"subject"`
	From             wireRecipient   `json:"from"`
	ToRecipients     []wireRecipient `json:"toRecipients"`
	Body             wireBody        `json:"body"`
	ReceivedDateTime *time.Time      `json:"receivedDateTime"`
	SentDateTime     *time.Time      `json:"sentDateTime"`
	IsRead           bool            `json:"isRead"`
	HasAttachments   bool            `json:"hasAttachments"`
}

type wireRecipient struct {
	EmailAddress types.EmailAddress `json:"emailAddress"`
}

type wireBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Fetch retrieves the message named by a notification resource path and
// returns it in normalized form.
func (c *MessagesClient) Fetch(ctx context.Context, resource string) (*types.Message, error) {
	userID, messageID, err := ParseMessageResource(resource)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/users/%s/messages/%s", c.baseURL, url.PathEscape(userID), url.PathEscape(messageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "building message request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, mapStatusError(resp)
	}

	var wire wireMessage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "decoding message response", err)
	}

	c.logger.InfoContext(ctx, "message fetched", "user_id", userID, "message_id", messageID)
	return normalizeMessage(wire), nil
}

// Decode normalizes a decrypted resource payload (the JSON recovered by the
// unwrap engine) without any network call.
func (c *MessagesClient) Decode(plaintext []byte) (*types.Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(plaintext, &wire); err != nil {
		return nil, types.NewAppError(types.ErrCodeDecryptPayload, "decrypted payload is not a message", err)
	}
	return normalizeMessage(wire), nil
}

// normalizeMessage maps the remote wire shape onto the stable form handed
// to the forwarder.
func normalizeMessage(wire wireMessage) *types.Message {
	msg := &types.Message{
		ID:               wire.ID,
		Subject:          wire.Subject,
		From:             wire.From.EmailAddress,
		Body:             types.MessageBody{ContentType: strings.ToLower(wire.Body.ContentType), Content: wire.Body.Content},
		ReceivedDateTime: wire.ReceivedDateTime,
		SentDateTime:     wire.SentDateTime,
		IsRead:           wire.IsRead,
		HasAttachments:   wire.HasAttachments,
	}
	for _, r := range wire.ToRecipients {
		msg.ToRecipients = append(msg.ToRecipients, r.EmailAddress)
	}
	return msg
}
