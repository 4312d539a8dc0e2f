/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "sort"
    "syscall"
    "time"

    "github.com/dfliao/chat-newbiz/internal/adapters/chat"
    "github.com/dfliao/chat-newbiz/internal/adapters/redmine"
    "github.com/dfliao/chat-newbiz/internal/config"
    httpx "github.com/dfliao/chat-newbiz/internal/http"
    "github.com/dfliao/chat-newbiz/internal/jobs"
    "github.com/dfliao/chat-newbiz/internal/logger"
    "github.com/dfliao/chat-newbiz/internal/repo"
    "github.com/dfliao/chat-newbiz/internal/services"
    "github.com/rs/zerolog"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    logStartup(cfg, log)

    // Audit store is optional; an empty DB_DSN runs the bridge stateless
    db, err := repo.Open(ctx, cfg, log)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    if db != nil { defer db.Close() }
    var repository *repo.Repository
    if db != nil { repository = repo.NewRepository(db, log) }

    // Adapters
    rm := redmine.NewClient(cfg, log)
    ch := chat.NewClient(cfg, log)

    // Service + HTTP
    svc := services.NewService(cfg, log, repository, rm, ch)
    router := httpx.NewRouter(cfg, log, svc)

    // Weekly digest cron (only with audit store + CRON_SPEC)
    if cron := jobs.NewCron(cfg, log, svc, repository); cron != nil {
        cron.Start()
        defer cron.Stop()
    }

    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}

// logStartup prints the channel/token/url maps with secrets masked to their
// last 8 characters.
func logStartup(cfg config.Config, log zerolog.Logger) {
    channels := make([]string, 0, len(cfg.ChatChannelIDs))
    for id := range cfg.ChatChannelIDs { channels = append(channels, id) }
    sort.Strings(channels)
    if len(channels) == 0 {
        log.Info().Str("channels", "ALL").Msg("startup")
    } else {
        log.Info().Strs("channels", channels).Msg("startup")
    }
    if len(cfg.ChatTokens) > 0 {
        masked := map[string]string{}
        for k, v := range cfg.ChatTokens { masked[k] = logger.Tail(v, 8) }
        log.Info().Any("outgoing_map_last8", masked).Msg("startup")
    }
    if len(cfg.ChatIncomingURLs) > 0 {
        masked := map[string]string{}
        for k, v := range cfg.ChatIncomingURLs { masked[k] = logger.Tail(v, 8) }
        log.Info().Any("incoming_map_last8", masked).Msg("startup")
    }
    if cfg.ChatWebhookURL != "" {
        log.Info().Str("default_incoming_last8", logger.Tail(cfg.ChatWebhookURL, 8)).Msg("startup")
    }
    log.Info().Strs("keywords", cfg.Keywords).Str("redmine", cfg.RedmineURL).Msg("startup")
}
