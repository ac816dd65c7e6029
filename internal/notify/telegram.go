package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTelegramAPI = "https://api.telegram.org"

// Telegram posts messages to a chat through the Bot API.
type Telegram struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

func NewTelegram(apiURL, token, chatID string, client *http.Client) *Telegram {
	if apiURL == "" {
		apiURL = DefaultTelegramAPI
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Telegram{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		client: client,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      html.EscapeString(text),
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the token is part of the URL, keep it out of logs
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil && resp.StatusCode == http.StatusOK {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || ar.ErrorCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: time.Duration(ar.Parameters.RetryAfter) * time.Second}
	}
	if resp.StatusCode != http.StatusOK || !ar.OK {
		desc := ar.Description
		if desc == "" {
			desc = resp.Status
		}
		return fmt.Errorf("telegram api: %s", desc)
	}
	return nil
}
