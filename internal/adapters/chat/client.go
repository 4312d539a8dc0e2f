/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package chat

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"

    "github.com/dfliao/chat-newbiz/internal/config"
    "github.com/rs/zerolog"
)

type Client struct {
    incomingURLs map[string]string
    defaultURL   string
    http         *http.Client
    log          zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        incomingURLs: cfg.ChatIncomingURLs,
        defaultURL:   cfg.ChatWebhookURL,
        http: &http.Client{
            Timeout: cfg.HTTPTimeout,
            Transport: &http.Transport{
                TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.ChatVerifyTLS},
            },
        },
        log: log,
    }
}

// PostMessage posts text back to a channel through its incoming webhook,
// falling back to the default webhook URL. Status 0 means the call was
// short-circuited without any network attempt, -1 a transport failure.
// The platform wants x-www-form-urlencoded with a payload=JSON field.
func (c *Client) PostMessage(ctx context.Context, text, channelID string) (int, string) {
    text = strings.TrimSpace(text)
    if text == "" {
        return 0, "empty text"
    }
    endpoint := c.incomingURLs[channelID]
    if endpoint == "" { endpoint = c.defaultURL }
    if endpoint == "" {
        return 0, fmt.Sprintf("no incoming url for channel %s", channelID)
    }

    payload, _ := json.Marshal(map[string]string{"text": text})
    form := url.Values{}
    form.Set("payload", string(payload))

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
    if err != nil { return -1, fmt.Sprintf("request failed: %v", err) }
    req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

    resp, err := c.http.Do(req)
    if err != nil {
        c.log.Error().Err(err).Str("channel_id", channelID).Msg("chat: post message failed")
        return -1, fmt.Sprintf("request failed: %v", err)
    }
    defer resp.Body.Close()
    b, _ := io.ReadAll(resp.Body)
    return resp.StatusCode, string(b)
}
