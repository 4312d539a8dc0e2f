/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "net/http"
    "sort"
    "strings"

    "github.com/gin-gonic/gin"
    "github.com/dfliao/chat-newbiz/internal/config"
    "github.com/dfliao/chat-newbiz/internal/domain"
    "github.com/dfliao/chat-newbiz/internal/services"
    "github.com/rs/zerolog"
)

type service interface {
    VerifyOutgoingToken(channelID, token string) bool
    ChannelAllowed(channelID string) bool
    HandleWebhook(ctx context.Context, msg domain.IncomingMessage) services.Result
    HandleCommand(ctx context.Context, text string, msg domain.IncomingMessage) services.Result
    HandleTestWebhook(ctx context.Context, msg domain.IncomingMessage) map[string]any
    GetLastRun(ctx context.Context) (any, error)
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, lr)
}

// ChatWebhook receives the platform's outgoing webhook as form data.
// Once authenticated the processing runs on a background context: a client
// disconnect must not abort in-flight tracker calls.
func (h *Handlers) ChatWebhook(c *gin.Context) {
    defer h.recoverJSON(c)

    msg := domain.IncomingMessage{
        ChannelID:   strings.TrimSpace(c.PostForm("channel_id")),
        ChannelName: c.PostForm("channel_name"),
        UserID:      c.PostForm("user_id"),
        Username:    c.PostForm("username"),
        RawText:     strings.TrimSpace(c.PostForm("text")),
    }
    token := strings.TrimSpace(c.PostForm("token"))

    keys := formKeys(c)
    h.log.Info().Str("keys", keys).Str("channel_id", msg.ChannelID).Bool("has_text", msg.RawText != "").Msg("webhook received")

    if !h.svc.ChannelAllowed(msg.ChannelID) {
        c.JSON(http.StatusForbidden, gin.H{"error": "Channel not allowed"})
        return
    }
    if !h.svc.VerifyOutgoingToken(msg.ChannelID, token) {
        c.JSON(http.StatusForbidden, gin.H{"error": "Invalid token for channel"})
        return
    }

    res := h.svc.HandleWebhook(context.Background(), msg)
    c.JSON(http.StatusOK, res)
}

// Command is the trusted direct endpoint: structured command string in JSON,
// no chat-token auth, richer response including the created issue link.
func (h *Handlers) Command(c *gin.Context) {
    defer h.recoverJSON(c)

    var in struct {
        Command     string `json:"command"`
        ChannelID   string `json:"channel_id"`
        ChannelName string `json:"channel_name"`
        UserID      string `json:"user_id"`
        Username    string `json:"username"`
    }
    if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Command) == "" {
        c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "command is required"})
        return
    }
    msg := domain.IncomingMessage{
        ChannelID:   in.ChannelID,
        ChannelName: in.ChannelName,
        UserID:      in.UserID,
        Username:    in.Username,
    }
    res := h.svc.HandleCommand(context.Background(), strings.TrimSpace(in.Command), msg)
    if !res.OK && res.Reason != "" && res.RedmineStatus == 0 {
        c.JSON(http.StatusBadRequest, res)
        return
    }
    c.JSON(http.StatusOK, res)
}

// TestWebhook mirrors the webhook flow without token verification. Debug only.
func (h *Handlers) TestWebhook(c *gin.Context) {
    defer h.recoverJSON(c)

    msg := domain.IncomingMessage{
        ChannelID:   formDefault(c, "channel_id", "196"),
        ChannelName: formDefault(c, "channel_name", "test_channel"),
        Username:    formDefault(c, "username", "test_user"),
        RawText:     formDefault(c, "text", "新商機測試 sandy.chung"),
    }
    h.log.Info().Str("text", msg.RawText).Str("channel_id", msg.ChannelID).Msg("test webhook")
    c.JSON(http.StatusOK, h.svc.HandleTestWebhook(context.Background(), msg))
}

// recoverJSON turns any panic into a structured failure payload so every
// call answers with JSON.
func (h *Handlers) recoverJSON(c *gin.Context) {
    if r := recover(); r != nil {
        h.log.Error().Any("panic", r).Msg("webhook handler panic")
        c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
    }
}

func formDefault(c *gin.Context, key, def string) string {
    if v := strings.TrimSpace(c.PostForm(key)); v != "" { return v }
    return def
}

// formKeys lists received field names for logging, never values (tokens).
func formKeys(c *gin.Context) string {
    _ = c.Request.ParseForm()
    keys := make([]string, 0, len(c.Request.PostForm))
    for k := range c.Request.PostForm { keys = append(keys, k) }
    sort.Strings(keys)
    return strings.Join(keys, ",")
}
