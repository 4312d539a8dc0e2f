package redmine

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/dfliao/chat-newbiz/internal/config"
    "github.com/dfliao/chat-newbiz/internal/domain"
    "github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
    t.Helper()
    srv := httptest.NewServer(handler)
    t.Cleanup(srv.Close)
    cfg := config.Config{
        RedmineURL:    srv.URL,
        RedmineAPIKey: "test-key",
        HTTPTimeout:   5 * time.Second,
    }
    return NewClient(cfg, zerolog.Nop()), srv
}

func TestResolveUser_DirectIDLookup(t *testing.T) {
    c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/users/42.json" {
            t.Errorf("unexpected path %s", r.URL.Path)
        }
        if r.Header.Get("X-Redmine-API-Key") != "test-key" {
            t.Error("missing api key header")
        }
        w.Write([]byte(`{"user":{"id":42,"login":"sandy","firstname":"Sandy","lastname":"Chung"}}`))
    }))
    if id := c.ResolveUser(context.Background(), "42"); id != 42 {
        t.Fatalf("ResolveUser = %d, want 42", id)
    }
}

func TestResolveUser_FailedIDLookupFallsToNameSearch(t *testing.T) {
    c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if strings.HasPrefix(r.URL.Path, "/users/") {
            w.WriteHeader(http.StatusNotFound)
            return
        }
        if got := r.URL.Query().Get("name"); got != "99" {
            t.Errorf("search name = %q", got)
        }
        w.Write([]byte(`{"users":[{"id":7,"login":"agent99","firstname":"Max","lastname":"Smart"}]}`))
    }))
    if id := c.ResolveUser(context.Background(), "99"); id != 7 {
        t.Fatalf("ResolveUser = %d, want substring fallback hit 7", id)
    }
}

func TestResolveUser_ExactMatchBeatsSubstring(t *testing.T) {
    c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Write([]byte(`{"users":[
            {"id":1,"login":"alice.wang","firstname":"Alicia","lastname":"Wang"},
            {"id":2,"login":"alice","firstname":"A","lastname":"B"}
        ]}`))
    }))
    // user 1 only matches by substring; the exact login match later in
    // document order must still win
    if id := c.ResolveUser(context.Background(), "Alice"); id != 2 {
        t.Fatalf("ResolveUser = %d, want exact login hit 2", id)
    }
    if id := c.ResolveUser(context.Background(), "alice.wang"); id != 1 {
        t.Fatalf("ResolveUser = %d, want 1", id)
    }
}

func TestResolveUser_SubstringInDocumentOrder(t *testing.T) {
    c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Write([]byte(`{"users":[
            {"id":1,"login":"wchen","firstname":"Wei","lastname":"Chen"},
            {"id":2,"login":"chenli","firstname":"Li","lastname":"Chen"}
        ]}`))
    }))
    if id := c.ResolveUser(context.Background(), "chen"); id != 1 {
        t.Fatalf("ResolveUser = %d, want first exact lastname hit 1", id)
    }
    if id := c.ResolveUser(context.Background(), "che"); id != 1 {
        t.Fatalf("ResolveUser = %d, want first substring hit 1", id)
    }
}

func TestResolveUser_NoMatch(t *testing.T) {
    c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Write([]byte(`{"users":[{"id":1,"login":"bob","firstname":"Bob","lastname":"Lee"}]}`))
    }))
    if id := c.ResolveUser(context.Background(), "carol"); id != 0 {
        t.Fatalf("ResolveUser = %d, want 0", id)
    }
}

func TestResolveProject_ExactThenSubstring(t *testing.T) {
    c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Write([]byte(`{"projects":[
            {"id":1,"name":"Chat Tools","identifier":"chat-tools"},
            {"id":2,"name":"chat","identifier":"chat"}
        ]}`))
    }))
    if got := c.ResolveProject(context.Background(), "chat"); got != "2" {
        t.Fatalf("exact name match = %q, want 2", got)
    }
    if got := c.ResolveProject(context.Background(), "Chat"); got != "1" {
        t.Fatalf("substring fallback = %q, want first hit 1", got)
    }
    if got := c.ResolveProject(context.Background(), "nope"); got != "" {
        t.Fatalf("no match = %q, want empty", got)
    }
}

func TestCreateIssue_MissingConfigShortCircuits(t *testing.T) {
    c := NewClient(config.Config{HTTPTimeout: time.Second}, zerolog.Nop())
    status, body, id := c.CreateIssue(context.Background(), domain.IssueRequest{Subject: "x"})
    if status != 0 || id != 0 || !strings.Contains(body, "not set") {
        t.Fatalf("got (%d, %q, %d)", status, body, id)
    }
}

func TestCreateIssue_BuildsFieldsAndParsesID(t *testing.T) {
    var posted map[string]map[string]any
    c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/users/42.json" {
            w.Write([]byte(`{"user":{"id":42,"login":"sandy"}}`))
            return
        }
        if r.URL.Path != "/issues.json" || r.Method != http.MethodPost {
            t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
        }
        if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
            t.Fatalf("decode body: %v", err)
        }
        w.WriteHeader(http.StatusCreated)
        w.Write([]byte(`{"issue":{"id":123}}`))
    }))

    status, _, id := c.CreateIssue(context.Background(), domain.IssueRequest{
        Subject:       "新商機 好案子",
        Description:   "desc",
        AssigneeRef:   "42",
        ParentIssueID: 10,
        DueDate:       "2024-01-10",
    })
    if status != 201 || id != 123 {
        t.Fatalf("got status=%d id=%d", status, id)
    }
    issue := posted["issue"]
    if issue["subject"] != "新商機 好案子" || issue["due_date"] != "2024-01-10" {
        t.Fatalf("unexpected issue payload: %v", issue)
    }
    if issue["assigned_to_id"] != float64(42) || issue["parent_issue_id"] != float64(10) {
        t.Fatalf("assignee/parent not set: %v", issue)
    }
}

func TestCreateIssue_ResolvesProjectName(t *testing.T) {
    var posted map[string]map[string]any
    lookups := 0
    c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/projects.json" {
            lookups++
            w.Write([]byte(`{"projects":[{"id":55,"name":"網站","identifier":"web"}]}`))
            return
        }
        _ = json.NewDecoder(r.Body).Decode(&posted)
        w.WriteHeader(http.StatusCreated)
        w.Write([]byte(`{"issue":{"id":9}}`))
    }))

    status, _, id := c.CreateIssue(context.Background(), domain.IssueRequest{Subject: "x", ProjectRef: "網站"})
    if status != 201 || id != 9 {
        t.Fatalf("got status=%d id=%d", status, id)
    }
    if lookups != 1 {
        t.Fatalf("project lookups = %d, want 1", lookups)
    }
    if got := posted["issue"]["project_id"]; got != "55" {
        t.Fatalf("project_id = %v, want resolved id 55", got)
    }
}

func TestCreateIssue_UnresolvedProjectFallsToDefault(t *testing.T) {
    var posted map[string]map[string]any
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/projects.json" {
            w.Write([]byte(`{"projects":[{"id":55,"name":"網站","identifier":"web"}]}`))
            return
        }
        _ = json.NewDecoder(r.Body).Decode(&posted)
        w.WriteHeader(http.StatusCreated)
        w.Write([]byte(`{"issue":{"id":9}}`))
    }))
    defer srv.Close()
    c := NewClient(config.Config{
        RedmineURL:       srv.URL,
        RedmineAPIKey:    "k",
        RedmineProjectID: "7",
        HTTPTimeout:      time.Second,
    }, zerolog.Nop())

    c.CreateIssue(context.Background(), domain.IssueRequest{Subject: "x", ProjectRef: "不存在的專案"})
    if got := posted["issue"]["project_id"]; got != "7" {
        t.Fatalf("project_id = %v, want configured default 7", got)
    }

    // numeric refs go through untouched, no lookup needed
    c.CreateIssue(context.Background(), domain.IssueRequest{Subject: "x", ProjectRef: "55"})
    if got := posted["issue"]["project_id"]; got != "55" {
        t.Fatalf("project_id = %v, want 55 verbatim", got)
    }
}

func TestCreateIssue_SubjectTruncatedAndDefaulted(t *testing.T) {
    var subject string
    c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        var posted map[string]map[string]any
        _ = json.NewDecoder(r.Body).Decode(&posted)
        subject, _ = posted["issue"]["subject"].(string)
        w.WriteHeader(http.StatusCreated)
        w.Write([]byte(`{"issue":{"id":1}}`))
    }))

    c.CreateIssue(context.Background(), domain.IssueRequest{Subject: strings.Repeat("長", 300)})
    if got := len([]rune(subject)); got != 255 {
        t.Fatalf("subject length = %d runes, want 255", got)
    }

    c.CreateIssue(context.Background(), domain.IssueRequest{})
    if subject != "(no subject)" {
        t.Fatalf("empty subject not defaulted, got %q", subject)
    }
}

func TestCreateIssue_NetworkFailure(t *testing.T) {
    srv := httptest.NewServer(http.NotFoundHandler())
    url := srv.URL
    srv.Close()
    c := NewClient(config.Config{RedmineURL: url, RedmineAPIKey: "k", HTTPTimeout: time.Second}, zerolog.Nop())
    status, body, id := c.CreateIssue(context.Background(), domain.IssueRequest{Subject: "x"})
    if status != -1 || id != 0 || !strings.Contains(body, "request failed") {
        t.Fatalf("got (%d, %q, %d)", status, body, id)
    }
}
