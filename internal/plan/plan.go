/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package plan

import (
    "fmt"
    "sort"
    "strings"
    "time"

    "github.com/dfliao/chat-newbiz/internal/domain"
)

// subtask catalog for the business-lead flow: always these three, in this
// order, with due dates computed independently from the creation instant.
var leadSubtasks = []struct {
    Subject     string
    Description string
    DueDays     int
}{
    {"合法性與可行性評估", "評估此商機的合法性與技術可行性", 2},
    {"初步模組舖排圖說", "製作初步的模組架構與流程圖說", 4},
    {"預算報價", "評估專案成本並提供初步報價", 7},
}

const (
    leadSubjectMax    = 120
    taskDefaultSubject = "(未命名議題)"
)

// Build derives the issue-creation plan for a classified command. It is pure:
// now is injected so due-date arithmetic is testable, and no gateway is
// touched here.
func Build(cmd domain.ParsedCommand, msg domain.IncomingMessage, now time.Time) domain.Plan {
    switch cmd.Kind {
    case domain.NewTask:
        return domain.Plan{Kind: domain.NewTask, Items: []domain.IssueRequest{buildTask(cmd, msg)}}
    case domain.BusinessLead:
        return buildLead(cmd, msg, now)
    }
    return domain.Plan{Kind: domain.NoMatch}
}

func buildTask(cmd domain.ParsedCommand, msg domain.IncomingMessage) domain.IssueRequest {
    subject := cmd.Subject
    if subject == "" { subject = taskDefaultSubject }

    var due string
    if cmd.StartDate != nil && cmd.DueDate != nil {
        d := *cmd.DueDate
        // due must be strictly after start; otherwise bump one calendar day
        if !d.After(*cmd.StartDate) {
            d = cmd.StartDate.AddDate(0, 0, 1)
        }
        due = DateString(d)
    } else if cmd.StartDate != nil {
        due = DateString(AddBusinessDays(*cmd.StartDate, 7))
    } else if cmd.DueDate != nil {
        due = DateString(*cmd.DueDate)
    }

    lines := []string{
        "**類型**: 新任務",
        fmt.Sprintf("**來源頻道**: %s (id=%s)", msg.ChannelName, msg.ChannelID),
        fmt.Sprintf("**使用者**: %s (id=%s)", msg.Username, msg.UserID),
    }
    if cmd.Project != "" { lines = append(lines, "**專案**: "+cmd.Project) }
    if cmd.Assignee != "" { lines = append(lines, "**指派者**: "+cmd.Assignee) }
    if cmd.StartDate != nil { lines = append(lines, "**開始**: "+DateString(*cmd.StartDate)) }
    if due != "" { lines = append(lines, "**完成**: "+due) }
    if len(cmd.Fields) > 0 {
        keys := make([]string, 0, len(cmd.Fields))
        for k := range cmd.Fields { keys = append(keys, k) }
        sort.Strings(keys)
        var echo []string
        for _, k := range keys { echo = append(echo, k+":"+cmd.Fields[k]) }
        lines = append(lines, "**原始欄位**: "+strings.Join(echo, " "))
    }

    return domain.IssueRequest{
        Subject:     subject,
        Description: strings.Join(lines, "\n\n"),
        ProjectRef:  cmd.Project,
        AssigneeRef: cmd.Assignee,
        DueDate:     due,
    }
}

func buildLead(cmd domain.ParsedCommand, msg domain.IncomingMessage, now time.Time) domain.Plan {
    subject := cmd.Subject
    if subject == "" { subject = msg.RawText }
    subject = truncate(subject, leadSubjectMax)

    lines := []string{
        fmt.Sprintf("**來源頻道**: %s (id=%s)", msg.ChannelName, msg.ChannelID),
        fmt.Sprintf("**使用者**: %s (id=%s)", msg.Username, msg.UserID),
    }
    if cmd.Assignee != "" { lines = append(lines, "**指派者**: "+cmd.Assignee) }
    lines = append(lines, "**原始文字**:\n"+msg.RawText)

    items := []domain.IssueRequest{{
        Subject:     subject,
        Description: strings.Join(lines, "\n\n"),
        AssigneeRef: cmd.Assignee,
        DueDate:     DateString(AddBusinessDays(now, 7)),
    }}
    for _, st := range leadSubtasks {
        items = append(items, domain.IssueRequest{
            Subject:     st.Subject,
            Description: st.Description,
            AssigneeRef: cmd.Assignee,
            DueDate:     DateString(AddBusinessDays(now, st.DueDays)),
        })
    }
    return domain.Plan{Kind: domain.BusinessLead, Items: items}
}

func truncate(s string, max int) string {
    r := []rune(s)
    if len(r) <= max { return s }
    return string(r[:max])
}
