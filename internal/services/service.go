/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "time"

    "github.com/dfliao/chat-newbiz/internal/config"
    "github.com/dfliao/chat-newbiz/internal/domain"
    "github.com/dfliao/chat-newbiz/internal/parser"
    "github.com/dfliao/chat-newbiz/internal/plan"
    "github.com/dfliao/chat-newbiz/internal/repo"
    "github.com/rs/zerolog"
)

type tracker interface {
    CreateIssue(ctx context.Context, req domain.IssueRequest) (status int, body string, issueID int)
    IssueURL(issueID int) string
}

type chatGateway interface {
    PostMessage(ctx context.Context, text, channelID string) (status int, body string)
}

type Service struct {
    cfg     config.Config
    log     zerolog.Logger
    repo    *repo.Repository
    tracker tracker
    chat    chatGateway
    now     func() time.Time
}

func NewService(cfg config.Config, log zerolog.Logger, r *repo.Repository, t tracker, ch chatGateway) *Service {
    return &Service{cfg: cfg, log: log, repo: r, tracker: t, chat: ch, now: time.Now}
}

// Result is the structured outcome of one webhook or command invocation.
type Result struct {
    OK      bool   `json:"ok"`
    Skipped bool   `json:"skipped,omitempty"`
    Reason  string `json:"reason,omitempty"`

    Kind              string `json:"kind,omitempty"`
    RedmineStatus     int    `json:"redmine_status"`
    ParentIssueID     int    `json:"parent_issue_id"`
    SubtasksCreated   int    `json:"subtasks_created"`
    SubtasksAttempted int    `json:"-"`
    IssueURL          string `json:"issue_url,omitempty"`
}

// VerifyOutgoingToken checks a webhook token: the per-channel map wins when
// configured, otherwise the single shared OUTGOING_TOKEN.
func (s *Service) VerifyOutgoingToken(channelID, token string) bool {
    if channelID == "" || token == "" { return false }
    if len(s.cfg.ChatTokens) > 0 {
        expect, ok := s.cfg.ChatTokens[channelID]
        return ok && token == expect
    }
    return token == s.cfg.OutgoingToken
}

// ChannelAllowed enforces the allow-list; an empty list allows everything.
func (s *Service) ChannelAllowed(channelID string) bool {
    if len(s.cfg.ChatChannelIDs) == 0 { return true }
    _, ok := s.cfg.ChatChannelIDs[channelID]
    return ok
}

// HandleWebhook runs the full classify → extract → build → execute →
// acknowledge sequence for one authenticated webhook payload. Every outbound
// failure is carried as a status value; nothing here returns an error.
func (s *Service) HandleWebhook(ctx context.Context, msg domain.IncomingMessage) Result {
    cmd := parser.Parse(msg.RawText, s.cfg.Keywords)
    if cmd.Kind == domain.NoMatch {
        s.log.Info().Str("channel_id", msg.ChannelID).Msg("webhook skipped: keyword not found")
        return Result{OK: true, Skipped: true, Reason: "keyword not found"}
    }
    s.log.Info().Str("kind", cmd.Kind.String()).Str("channel_id", msg.ChannelID).
        Str("assignee", cmd.Assignee).Msg("webhook classified")

    p := plan.Build(cmd, msg, s.now())
    steps := s.ExecutePlan(ctx, p)
    res := summarize(p.Kind, steps)

    ack := s.ackText(res)
    ackStatus, ackBody := s.chat.PostMessage(ctx, ack, msg.ChannelID)
    s.log.Info().Int("status", ackStatus).Str("body", clip(ackBody, 200)).Msg("chat ack")

    s.record(ctx, msg, res, ackStatus)
    return res
}

// HandleCommand serves the trusted direct endpoint: a structured new-task
// command string, no chat-token auth, richer response with the issue link.
func (s *Service) HandleCommand(ctx context.Context, text string, msg domain.IncomingMessage) Result {
    cmd, ok := parser.ExtractTask(text)
    if !ok {
        return Result{OK: false, Reason: "missing 標題 field"}
    }
    msg.RawText = text
    p := plan.Build(cmd, msg, s.now())
    steps := s.ExecutePlan(ctx, p)
    res := summarize(p.Kind, steps)
    if res.OK && res.ParentIssueID != 0 {
        res.IssueURL = s.tracker.IssueURL(res.ParentIssueID)
    }
    if msg.ChannelID != "" {
        ackStatus, _ := s.chat.PostMessage(ctx, s.ackText(res), msg.ChannelID)
        s.record(ctx, msg, res, ackStatus)
    } else {
        s.record(ctx, msg, res, 0)
    }
    return res
}

// HandleTestWebhook drives the business-lead flow end to end without token
// checks and returns a verbose diagnostic payload. Debug aid only.
func (s *Service) HandleTestWebhook(ctx context.Context, msg domain.IncomingMessage) map[string]any {
    assignee, subject := parser.ExtractLeadAssignee(msg.RawText)
    cmd := domain.ParsedCommand{Kind: domain.BusinessLead, Subject: subject, Assignee: assignee}
    p := plan.Build(cmd, msg, s.now())
    // the parent is marked as a test issue and carries no due date, so
    // diagnostic runs stay distinguishable from real leads
    p.Items[0].Description = "**測試模式**\n\n" + p.Items[0].Description
    p.Items[0].DueDate = ""
    steps := s.ExecutePlan(ctx, p)
    res := summarize(p.Kind, steps)

    parent := steps[0]
    subtasks := make([]map[string]any, 0, len(steps)-1)
    for _, st := range steps[1:] {
        subtasks = append(subtasks, map[string]any{
            "status_code": st.StatusCode,
            "subject":     st.Subject,
            "issue_id":    st.IssueID,
        })
    }
    total := 0
    if res.OK { total = 1 + res.SubtasksCreated }
    return map[string]any{
        "test_mode":       true,
        "original_text":   msg.RawText,
        "parsed_assignee": assignee,
        "subject":         p.Items[0].Subject,
        "main_issue": map[string]any{
            "status_code":      parent.StatusCode,
            "issue_id":         parent.IssueID,
            "response_preview": clip(parent.Body, 200),
        },
        "subtasks":      subtasks,
        "total_created": total,
    }
}

// ExecutePlan walks the plan in order. The first item is the parent; on the
// business-lead path the follow-up subtasks run only after the parent call
// succeeded with an id, each independently of the others' outcomes.
func (s *Service) ExecutePlan(ctx context.Context, p domain.Plan) []domain.StepResult {
    if len(p.Items) == 0 { return nil }

    parent := p.Items[0]
    status, body, issueID := s.tracker.CreateIssue(ctx, parent)
    steps := []domain.StepResult{{Subject: parent.Subject, StatusCode: status, IssueID: issueID, Body: body}}
    s.log.Info().Int("status", status).Int("issue_id", issueID).Str("subject", clip(parent.Subject, 50)).Msg("parent issue")

    if len(p.Items) == 1 { return steps }
    if status < 200 || status >= 300 {
        s.log.Error().Int("status", status).Msg("parent issue failed, skipping subtasks")
        return steps
    }
    if issueID == 0 {
        s.log.Warn().Str("body", clip(body, 500)).Msg("parent issue created without id, skipping subtasks")
        return steps
    }

    for i, item := range p.Items[1:] {
        item.ParentIssueID = issueID
        st, b, id := s.tracker.CreateIssue(ctx, item)
        steps = append(steps, domain.StepResult{Subject: item.Subject, StatusCode: st, IssueID: id, Body: b})
        if st >= 200 && st < 300 {
            s.log.Info().Int("n", i+1).Int("issue_id", id).Str("subject", item.Subject).Msg("subtask created")
        } else {
            s.log.Error().Int("n", i+1).Int("status", st).Str("subject", item.Subject).Str("body", clip(b, 200)).Msg("subtask failed")
        }
    }
    return steps
}

func summarize(kind domain.CommandKind, steps []domain.StepResult) Result {
    res := Result{Kind: kind.String()}
    if len(steps) == 0 { return res }
    parent := steps[0]
    res.RedmineStatus = parent.StatusCode
    res.ParentIssueID = parent.IssueID
    res.OK = parent.OK()
    res.SubtasksAttempted = len(steps) - 1
    for _, st := range steps[1:] {
        if st.OK() { res.SubtasksCreated++ }
    }
    return res
}

func (s *Service) ackText(res Result) string {
    if !res.OK {
        return fmt.Sprintf("❌ 建議題失敗（HTTP %d）", res.RedmineStatus)
    }
    switch res.Kind {
    case domain.BusinessLead.String():
        total := res.SubtasksAttempted
        if res.SubtasksCreated == total {
            return fmt.Sprintf("✅ 已建立 Redmine 主議題及 %d 個子議題", res.SubtasksCreated)
        }
        return fmt.Sprintf("✅ 已建立 Redmine 主議題，子議題 %d/%d 成功", res.SubtasksCreated, total)
    default:
        return fmt.Sprintf("✅ 已建立 Redmine 議題 #%d", res.ParentIssueID)
    }
}

func (s *Service) record(ctx context.Context, msg domain.IncomingMessage, res Result, ackStatus int) {
    if !s.repo.Enabled() { return }
    _, err := s.repo.InsertRun(ctx, domain.RunRecord{
        ChannelID:       msg.ChannelID,
        Username:        msg.Username,
        Kind:            res.Kind,
        RedmineStatus:   res.RedmineStatus,
        ParentIssueID:   res.ParentIssueID,
        SubtasksCreated: res.SubtasksCreated,
        AckStatus:       ackStatus,
        At:              s.now(),
    })
    if err != nil { s.log.Error().Err(err).Msg("audit insert failed") }
}

// GetLastRun exposes the newest audit record for the admin endpoint.
func (s *Service) GetLastRun(ctx context.Context) (any, error) {
    if !s.repo.Enabled() { return map[string]any{"audit": "disabled"}, nil }
    return s.repo.LastRun(ctx)
}

// RunWeeklyDigest posts last week's successful lead count to the default
// channel. No-op without an audit store.
func (s *Service) RunWeeklyDigest(ctx context.Context) error {
    if !s.repo.Enabled() { return nil }
    since := s.now().AddDate(0, 0, -7)
    n, err := s.repo.CountLeadsSince(ctx, since)
    if err != nil { return err }
    text := fmt.Sprintf("📈 上週共建立 %d 筆商機議題", n)
    status, body := s.chat.PostMessage(ctx, text, "")
    if status != 0 && (status < 200 || status >= 300) {
        return fmt.Errorf("digest post status=%d body=%s", status, clip(body, 200))
    }
    return nil
}

func clip(s string, n int) string {
    r := []rune(s)
    if len(r) <= n { return s }
    return string(r[:n])
}
