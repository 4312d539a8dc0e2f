/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package parser

import (
    "regexp"
    "strings"
    "time"

    "github.com/dfliao/chat-newbiz/internal/domain"
)

// Structured-command trigger words. Substring match, not tokenized.
var taskTriggers = []string{"新任務", "增加新任務", "增加新議題", "新議題"}

var (
    projectPattern  = regexp.MustCompile(`專案:(\S+)`)
    subjectPattern  = regexp.MustCompile(`標題:(\S+)`)
    assigneePattern = regexp.MustCompile(`指派:(\S+)`)
    startPattern    = regexp.MustCompile(`開始:(\d{4}-\d{2}-\d{2})`)
    duePattern      = regexp.MustCompile(`完成:(\d{4}-\d{2}-\d{2})`)

    mentionPattern = regexp.MustCompile(`@(\S+)`)
    userIDPattern  = regexp.MustCompile(`^u:(\d+)`)
    spacePattern   = regexp.MustCompile(`\s+`)

    // fallback username heuristics: english first.last / first_last
    dotNamePattern        = regexp.MustCompile(`\b([a-zA-Z]+\.[a-zA-Z]+)\b`)
    underscoreNamePattern = regexp.MustCompile(`\b([a-zA-Z]+_[a-zA-Z]+)\b`)
)

// Parse classifies text and extracts its parameters. The structured new-task
// check runs first; a task trigger without an extractable subject falls
// through to the business-lead keyword check, and only then to NoMatch.
func Parse(text string, keywords []string) domain.ParsedCommand {
    if hasTaskTrigger(text) {
        if cmd, ok := ExtractTask(text); ok {
            return cmd
        }
    }
    if hasKeyword(text, keywords) {
        assignee, subject := ExtractLeadAssignee(text)
        return domain.ParsedCommand{Kind: domain.BusinessLead, Subject: subject, Assignee: assignee}
    }
    return domain.ParsedCommand{Kind: domain.NoMatch}
}

func hasTaskTrigger(text string) bool {
    for _, t := range taskTriggers {
        if strings.Contains(text, t) { return true }
    }
    return false
}

func hasKeyword(text string, keywords []string) bool {
    if text == "" { return false }
    for _, k := range keywords {
        if k != "" && strings.Contains(text, k) { return true }
    }
    return false
}

// ExtractTask pulls the five labeled fields out of a structured command.
// Fields may appear in any order anywhere in the text; each value is the run
// of non-whitespace after its label. Without a 標題 field there is no task.
func ExtractTask(text string) (domain.ParsedCommand, bool) {
    subject := firstGroup(subjectPattern, text)
    if subject == "" {
        return domain.ParsedCommand{}, false
    }
    cmd := domain.ParsedCommand{
        Kind:     domain.NewTask,
        Subject:  subject,
        Project:  firstGroup(projectPattern, text),
        Assignee: firstGroup(assigneePattern, text),
        Fields:   map[string]string{"標題": subject},
    }
    if cmd.Project != "" { cmd.Fields["專案"] = cmd.Project }
    if cmd.Assignee != "" { cmd.Fields["指派"] = cmd.Assignee }
    if v := firstGroup(startPattern, text); v != "" {
        if d, err := time.Parse("2006-01-02", v); err == nil {
            cmd.StartDate = &d
            cmd.Fields["開始"] = v
        }
    }
    if v := firstGroup(duePattern, text); v != "" {
        if d, err := time.Parse("2006-01-02", v); err == nil {
            cmd.DueDate = &d
            cmd.Fields["完成"] = v
        }
    }
    return cmd, true
}

// ExtractLeadAssignee finds an informally-mentioned assignee in free text.
// An @token wins and is removed from the derived subject; the platform's
// internal @u:<id> form keeps only the numeric id. Without an @, the first
// first.last / first_last shaped token is used and the text kept intact.
func ExtractLeadAssignee(text string) (assignee, subject string) {
    subject = text
    if strings.Contains(text, "@") {
        if m := mentionPattern.FindStringSubmatch(text); m != nil {
            token := m[1]
            if um := userIDPattern.FindStringSubmatch(token); um != nil {
                assignee = um[1]
            } else {
                assignee = token
            }
            subject = strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
            subject = spacePattern.ReplaceAllString(subject, " ")
        }
        return assignee, subject
    }
    // may false-positive on dotted tokens like version numbers; kept as-is
    if m := dotNamePattern.FindStringSubmatch(text); m != nil {
        return m[1], subject
    }
    if m := underscoreNamePattern.FindStringSubmatch(text); m != nil {
        return m[1], subject
    }
    return "", subject
}

func firstGroup(re *regexp.Regexp, text string) string {
    if m := re.FindStringSubmatch(text); m != nil { return m[1] }
    return ""
}
