package jobs

import (
    "context"
    "time"

    "github.com/dfliao/chat-newbiz/internal/config"
    "github.com/dfliao/chat-newbiz/internal/repo"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type service interface { RunWeeklyDigest(ctx context.Context) error }

type Cron struct {
    cfg  config.Config
    log  zerolog.Logger
    svc  service
    repo *repo.Repository
    c    *cron.Cron
}

// NewCron schedules the weekly lead digest. Nil when no CRON_SPEC or no
// audit store is configured.
func NewCron(cfg config.Config, log zerolog.Logger, svc service, r *repo.Repository) *Cron {
    if cfg.DigestCron == "" || !r.Enabled() { return nil }
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, repo: r, c: c}
    _, _ = c.AddFunc(cfg.DigestCron, cr.weekly)
    return cr
}

func (cr *Cron) Start(){ cr.c.Start() }
func (cr *Cron) Stop(){ cr.c.Stop() }

func (cr *Cron) weekly(){
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute); defer cancel()
    const lockKey int64 = 778899
    ok, err := cr.repo.TryAdvisoryLock(ctx, lockKey)
    if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
    if !ok { cr.log.Info().Msg("cron: already running elsewhere"); return }
    defer func(){ _ = cr.repo.AdvisoryUnlock(context.Background(), lockKey) }()
    cr.log.Info().Msg("cron: weekly lead digest")
    if err := cr.svc.RunWeeklyDigest(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: digest failed") }
}
