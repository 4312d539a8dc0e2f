/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
    "log"
    "os"
    "strings"
    "time"
)

type Config struct {
    AppEnv   string
    TZ       string
    HTTPAddr string

    DBDSN string

    // Outgoing webhook verification
    OutgoingToken  string            // single shared secret
    ChatTokens     map[string]string // per-channel: '196:tokA,94:tokB'
    ChatChannelIDs map[string]struct{}

    // Incoming webhook post-back
    ChatIncomingURLs map[string]string // per-channel: '196:urlA,94:urlB'
    ChatWebhookURL   string            // fallback when no per-channel URL
    ChatVerifyTLS    bool

    RedmineURL       string
    RedmineAPIKey    string
    RedmineProject   string
    RedmineProjectID string
    RedmineTrackerID string
    RedmineStatusID  string
    RedmineVerify    bool

    // Business-lead trigger keywords
    Keywords []string

    HTTPTimeout time.Duration
    DigestCron  string
}

func getenv(key, def string) string {
    v := os.Getenv(key)
    if v == "" { return def }
    return v
}

func dur(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" { return def }
    d, err := time.ParseDuration(v)
    if err != nil { return def }
    return d
}

func parseBool(v string, def bool) bool {
    v = strings.ToLower(strings.TrimSpace(v))
    if v == "" { return def }
    switch v {
    case "1", "true", "yes", "y", "on":
        return true
    }
    return false
}

// parseMap parses 'k1:v1,k2:v2' into a map, trimming both sides.
// Values may themselves contain ':' (URLs), only the first one splits.
func parseMap(raw string) map[string]string {
    m := map[string]string{}
    for _, part := range strings.Split(raw, ",") {
        part = strings.TrimSpace(part)
        if part == "" { continue }
        k, v, ok := strings.Cut(part, ":")
        if !ok { continue }
        k = strings.TrimSpace(k)
        v = strings.TrimSpace(v)
        if k != "" && v != "" { m[k] = v }
    }
    return m
}

func parseStrings(csv string) []string {
    if csv == "" { return nil }
    parts := strings.Split(csv, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p == "" { continue }
        out = append(out, p)
    }
    return out
}

func parseSet(csv string) map[string]struct{} {
    out := map[string]struct{}{}
    for _, s := range parseStrings(strings.ReplaceAll(csv, " ", "")) {
        out[s] = struct{}{}
    }
    return out
}

func Load() Config {
    cfg := Config{
        AppEnv:   getenv("APP_ENV", "dev"),
        TZ:       getenv("APP_TZ", "Asia/Taipei"),
        HTTPAddr: getenv("HTTP_ADDR", ":8085"),

        DBDSN: getenv("DB_DSN", ""),

        OutgoingToken:  strings.TrimSpace(getenv("OUTGOING_TOKEN", "")),
        ChatTokens:     parseMap(getenv("CHAT_TOKENS", "")),
        ChatChannelIDs: parseSet(getenv("CHAT_CHANNEL_IDS", "")),

        ChatIncomingURLs: parseMap(getenv("CHAT_INCOMING_URLS", "")),
        ChatWebhookURL:   strings.TrimSpace(getenv("CHAT_WEBHOOK_URL", "")),
        ChatVerifyTLS:    parseBool(os.Getenv("CHAT_VERIFY_TLS"), false),

        RedmineURL:       strings.TrimRight(getenv("REDMINE_URL", ""), "/"),
        RedmineAPIKey:    strings.TrimSpace(getenv("REDMINE_API_KEY", "")),
        RedmineProject:   strings.TrimSpace(getenv("REDMINE_PROJECT", "")),
        RedmineProjectID: strings.TrimSpace(getenv("REDMINE_PROJECT_ID", "")),
        RedmineTrackerID: strings.TrimSpace(getenv("REDMINE_TRACKER_ID", "")),
        RedmineStatusID:  strings.TrimSpace(getenv("REDMINE_STATUS_ID", "")),
        RedmineVerify:    parseBool(os.Getenv("REDMINE_VERIFY"), false),

        HTTPTimeout: dur("HTTP_TIMEOUT", 10*time.Second),
        DigestCron:  getenv("CRON_SPEC", ""),
    }

    // KEYWORDS (comma-separated) wins over the single KEYWORD fallback
    kw := strings.TrimSpace(getenv("KEYWORD", "新商機"))
    if raw := strings.TrimSpace(getenv("KEYWORDS", "")); raw != "" {
        cfg.Keywords = parseStrings(raw)
    } else {
        cfg.Keywords = []string{kw}
    }

    if loc, err := time.LoadLocation(cfg.TZ); err == nil {
        time.Local = loc
    } else {
        log.Printf("warning: cannot load TZ %s: %v", cfg.TZ, err)
    }
    return cfg
}

// DefaultProjectRef mirrors the tracker-side fallback: the numeric project id
// wins over the project identifier string; empty means no default.
func (c Config) DefaultProjectRef() string {
    if c.RedmineProjectID != "" { return c.RedmineProjectID }
    return c.RedmineProject
}
