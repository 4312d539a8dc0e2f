package domain

import "time"

// CommandKind classifies an incoming chat message.
type CommandKind int

const (
    NoMatch CommandKind = iota
    NewTask
    BusinessLead
)

func (k CommandKind) String() string {
    switch k {
    case NewTask:
        return "new_task"
    case BusinessLead:
        return "business_lead"
    }
    return "no_match"
}

// IncomingMessage is one outgoing-webhook payload from the chat platform.
// Built once per call, read-only afterwards.
type IncomingMessage struct {
    ChannelID   string
    ChannelName string
    UserID      string
    Username    string
    RawText     string
}

// ParsedCommand is the classification result plus extracted parameters.
// Kind==NewTask always carries a non-empty Subject; a trigger without a
// subject field never classifies as NewTask.
type ParsedCommand struct {
    Kind     CommandKind
    Subject  string
    Project  string
    Assignee string
    // Fields echoes the raw label:value pairs of a structured command.
    Fields    map[string]string
    StartDate *time.Time
    DueDate   *time.Time
}

// IssueRequest is one issue-creation call against the tracker.
type IssueRequest struct {
    Subject       string
    Description   string
    ProjectRef    string // name or numeric id; empty = configured default
    AssigneeRef   string // name or numeric id; empty = unassigned
    ParentIssueID int    // 0 = top-level; filled by the executor for subtasks
    DueDate       string // YYYY-MM-DD; empty = none
}

// Plan is the ordered set of issue-creation calls derived from one command:
// a single request on the new-task path, or a parent followed by the three
// fixed follow-up subtasks on the business-lead path.
type Plan struct {
    Kind  CommandKind
    Items []IssueRequest
}

// StepResult is the outcome of one executed IssueRequest.
type StepResult struct {
    Subject    string
    StatusCode int
    IssueID    int
    Body       string
}

func (r StepResult) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// RunRecord is one processed webhook call as persisted in the audit log.
type RunRecord struct {
    ID              int64
    ChannelID       string
    Username        string
    Kind            string
    RedmineStatus   int
    ParentIssueID   int
    SubtasksCreated int
    AckStatus       int
    At              time.Time
}
