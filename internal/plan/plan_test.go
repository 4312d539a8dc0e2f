package plan

import (
    "strings"
    "testing"
    "time"

    "github.com/dfliao/chat-newbiz/internal/domain"
)

var testMsg = domain.IncomingMessage{
    ChannelID:   "196",
    ChannelName: "業務",
    UserID:      "7",
    Username:    "sandy",
}

func newTaskCmd(subject string, start, due *time.Time) domain.ParsedCommand {
    return domain.ParsedCommand{Kind: domain.NewTask, Subject: subject, StartDate: start, DueDate: due}
}

func TestBuildTask_DueNotAfterStartAdvancesOneCalendarDay(t *testing.T) {
    start := date(2024, 1, 1)
    due := date(2024, 1, 1)
    p := Build(newTaskCmd("修復登入", &start, &due), testMsg, date(2024, 1, 1))
    if len(p.Items) != 1 {
        t.Fatalf("expected single-item plan, got %d", len(p.Items))
    }
    if p.Items[0].DueDate != "2024-01-02" {
        t.Fatalf("expected due auto-advanced to 2024-01-02, got %q", p.Items[0].DueDate)
    }
}

func TestBuildTask_DueAdvanceIsCalendarNotBusiness(t *testing.T) {
    // start on a Friday: one calendar day lands on Saturday
    start := date(2024, 1, 5)
    due := date(2024, 1, 4)
    p := Build(newTaskCmd("x", &start, &due), testMsg, start)
    if p.Items[0].DueDate != "2024-01-06" {
        t.Fatalf("expected calendar-day bump to 2024-01-06, got %q", p.Items[0].DueDate)
    }
}

func TestBuildTask_StartOnlyGetsSevenBusinessDays(t *testing.T) {
    start := date(2024, 1, 1)
    p := Build(newTaskCmd("修復登入", &start, nil), testMsg, start)
    if p.Items[0].DueDate != "2024-01-10" {
        t.Fatalf("expected due 2024-01-10, got %q", p.Items[0].DueDate)
    }
}

func TestBuildTask_NoDatesNoDue(t *testing.T) {
    p := Build(newTaskCmd("修復登入", nil, nil), testMsg, date(2024, 1, 1))
    if p.Items[0].DueDate != "" {
        t.Fatalf("expected no due date, got %q", p.Items[0].DueDate)
    }
}

func TestBuildTask_EmptySubjectGetsPlaceholder(t *testing.T) {
    p := Build(newTaskCmd("", nil, nil), testMsg, date(2024, 1, 1))
    if p.Items[0].Subject == "" {
        t.Fatal("expected placeholder subject for defensive path")
    }
}

func TestBuildTask_DescriptionCarriesFieldEcho(t *testing.T) {
    cmd := newTaskCmd("修復登入", nil, nil)
    cmd.Project = "網站"
    cmd.Fields = map[string]string{"標題": "修復登入", "專案": "網站"}
    p := Build(cmd, testMsg, date(2024, 1, 1))
    desc := p.Items[0].Description
    for _, want := range []string{"新任務", "業務", "sandy", "專案:網站", "標題:修復登入"} {
        if !strings.Contains(desc, want) {
            t.Errorf("description missing %q:\n%s", want, desc)
        }
    }
}

func TestBuildLead_PlanShape(t *testing.T) {
    now := date(2024, 1, 1) // Monday
    cmd := domain.ParsedCommand{Kind: domain.BusinessLead, Subject: "新商機 好案子", Assignee: "42"}
    msg := testMsg
    msg.RawText = "新商機 @u:42 好案子"
    p := Build(cmd, msg, now)

    if len(p.Items) != 4 {
        t.Fatalf("expected parent + 3 subtasks, got %d items", len(p.Items))
    }
    parent := p.Items[0]
    if parent.Subject != "新商機 好案子" {
        t.Errorf("parent subject = %q", parent.Subject)
    }
    if parent.DueDate != "2024-01-10" {
        t.Errorf("parent due = %q, want 2024-01-10 (7 business days)", parent.DueDate)
    }
    if !strings.Contains(parent.Description, msg.RawText) {
        t.Errorf("parent description must echo raw text")
    }

    wantSubjects := []string{"合法性與可行性評估", "初步模組舖排圖說", "預算報價"}
    wantDue := []string{"2024-01-03", "2024-01-05", "2024-01-10"} // 2, 4, 7 business days, each from now
    for i, item := range p.Items[1:] {
        if item.Subject != wantSubjects[i] {
            t.Errorf("subtask %d subject = %q, want %q", i+1, item.Subject, wantSubjects[i])
        }
        if item.DueDate != wantDue[i] {
            t.Errorf("subtask %d due = %q, want %q", i+1, item.DueDate, wantDue[i])
        }
        if item.AssigneeRef != "42" {
            t.Errorf("subtask %d should inherit assignee, got %q", i+1, item.AssigneeRef)
        }
        if item.ParentIssueID != 0 {
            t.Errorf("builder must leave parent id to the executor, got %d", item.ParentIssueID)
        }
    }
}

func TestBuildLead_SubjectTruncatedTo120Runes(t *testing.T) {
    long := strings.Repeat("商", 200)
    cmd := domain.ParsedCommand{Kind: domain.BusinessLead, Subject: long}
    p := Build(cmd, testMsg, date(2024, 1, 1))
    if got := len([]rune(p.Items[0].Subject)); got != 120 {
        t.Fatalf("expected 120-rune subject, got %d", got)
    }
}

func TestBuild_NoMatchYieldsEmptyPlan(t *testing.T) {
    p := Build(domain.ParsedCommand{Kind: domain.NoMatch}, testMsg, date(2024, 1, 1))
    if len(p.Items) != 0 {
        t.Fatalf("expected empty plan, got %d items", len(p.Items))
    }
}
