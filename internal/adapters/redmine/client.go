/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package redmine

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"
    "strings"

    "github.com/dfliao/chat-newbiz/internal/config"
    "github.com/dfliao/chat-newbiz/internal/domain"
    "github.com/rs/zerolog"
)

type Client struct {
    baseURL    string
    apiKey     string
    projectRef string
    trackerID  string
    statusID   string
    http       *http.Client
    log        zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL:    cfg.RedmineURL,
        apiKey:     cfg.RedmineAPIKey,
        projectRef: cfg.DefaultProjectRef(),
        trackerID:  cfg.RedmineTrackerID,
        statusID:   cfg.RedmineStatusID,
        http: &http.Client{
            Timeout: cfg.HTTPTimeout,
            Transport: &http.Transport{
                TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.RedmineVerify},
            },
        },
        log: log,
    }
}

type user struct {
    ID        int    `json:"id"`
    Login     string `json:"login"`
    Firstname string `json:"firstname"`
    Lastname  string `json:"lastname"`
}

// ResolveUser maps a name-or-id query to a Redmine user id. A numeric query
// tries a direct id lookup first; any failure falls through to the name
// search, where an exact match on login/first/last/full name wins over a
// substring match, in document order. 0 means no match.
func (c *Client) ResolveUser(ctx context.Context, query string) int {
    query = strings.TrimSpace(query)
    if c.baseURL == "" || c.apiKey == "" || query == "" {
        c.log.Warn().Msg("redmine: missing config or empty user query")
        return 0
    }

    if id, err := strconv.Atoi(query); err == nil {
        status, body := c.get(ctx, "/users/"+strconv.Itoa(id)+".json", nil)
        if status == http.StatusOK {
            var out struct{ User user `json:"user"` }
            if json.Unmarshal([]byte(body), &out) == nil && out.User.ID != 0 {
                c.log.Info().Int("user_id", out.User.ID).Str("login", out.User.Login).Msg("redmine: user resolved by id")
                return out.User.ID
            }
        }
        c.log.Warn().Int("status", status).Str("query", query).Msg("redmine: id lookup failed, trying name search")
    }

    q := url.Values{}
    q.Set("name", query)
    q.Set("limit", "25")
    status, body := c.get(ctx, "/users.json", q)
    if status != http.StatusOK {
        c.log.Warn().Int("status", status).Str("body", clip(body, 200)).Msg("redmine: user search failed")
        return 0
    }
    var out struct{ Users []user `json:"users"` }
    if err := json.Unmarshal([]byte(body), &out); err != nil {
        c.log.Error().Err(err).Msg("redmine: user search decode failed")
        return 0
    }

    lower := strings.ToLower(query)
    for _, u := range out.Users {
        full := strings.ToLower(strings.TrimSpace(u.Firstname + " " + u.Lastname))
        if strings.ToLower(u.Login) == lower || strings.ToLower(u.Firstname) == lower ||
            strings.ToLower(u.Lastname) == lower || full == lower {
            return u.ID
        }
    }
    for _, u := range out.Users {
        full := strings.ToLower(strings.TrimSpace(u.Firstname + " " + u.Lastname))
        if strings.Contains(strings.ToLower(u.Login), lower) || strings.Contains(full, lower) {
            return u.ID
        }
    }
    c.log.Warn().Str("query", query).Int("candidates", len(out.Users)).Msg("redmine: no matching user")
    return 0
}

// ResolveProject maps a project name to its identifier: case-sensitive exact
// name first, then case-insensitive substring, first hit wins. Empty means
// no match (the caller keeps the configured default).
func (c *Client) ResolveProject(ctx context.Context, name string) string {
    name = strings.TrimSpace(name)
    if c.baseURL == "" || c.apiKey == "" || name == "" { return "" }
    q := url.Values{}
    q.Set("limit", "100")
    status, body := c.get(ctx, "/projects.json", q)
    if status != http.StatusOK {
        c.log.Warn().Int("status", status).Msg("redmine: project list failed")
        return ""
    }
    var out struct {
        Projects []struct {
            ID         int    `json:"id"`
            Name       string `json:"name"`
            Identifier string `json:"identifier"`
        } `json:"projects"`
    }
    if err := json.Unmarshal([]byte(body), &out); err != nil { return "" }
    for _, p := range out.Projects {
        if p.Name == name { return strconv.Itoa(p.ID) }
    }
    lower := strings.ToLower(name)
    for _, p := range out.Projects {
        if strings.Contains(strings.ToLower(p.Name), lower) { return strconv.Itoa(p.ID) }
    }
    return ""
}

// CreateIssue posts one issue. The returned status is the raw HTTP status,
// 0 when configuration is missing (no network attempt) or -1 on a transport
// failure; the issue id is 0 unless a 2xx response carried one.
func (c *Client) CreateIssue(ctx context.Context, req domain.IssueRequest) (int, string, int) {
    if c.baseURL == "" || c.apiKey == "" {
        return 0, "REDMINE_URL or REDMINE_API_KEY not set", 0
    }

    subject := req.Subject
    if subject == "" { subject = "(no subject)" }
    issue := map[string]any{
        "subject":     clip(subject, 255),
        "description": req.Description,
    }
    projectRef := req.ProjectRef
    if projectRef != "" {
        // Redmine accepts a numeric id or identifier slug as project_id,
        // never a display name, so a 專案: name must be resolved first.
        if _, err := strconv.Atoi(projectRef); err != nil {
            if id := c.ResolveProject(ctx, projectRef); id != "" {
                projectRef = id
            } else {
                c.log.Warn().Str("project", req.ProjectRef).Msg("redmine: project not resolved, using default")
                projectRef = c.projectRef
            }
        }
    } else {
        projectRef = c.projectRef
    }
    if projectRef != "" { issue["project_id"] = projectRef }
    if id, err := strconv.Atoi(c.trackerID); err == nil { issue["tracker_id"] = id }
    if id, err := strconv.Atoi(c.statusID); err == nil { issue["status_id"] = id }
    if req.AssigneeRef != "" {
        if id := c.ResolveUser(ctx, req.AssigneeRef); id != 0 {
            issue["assigned_to_id"] = id
        }
    }
    if req.ParentIssueID != 0 { issue["parent_issue_id"] = req.ParentIssueID }
    if req.DueDate != "" { issue["due_date"] = req.DueDate }

    b, _ := json.Marshal(map[string]any{"issue": issue})
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/issues.json", bytes.NewReader(b))
    if err != nil { return -1, fmt.Sprintf("request failed: %v", err), 0 }
    httpReq.Header.Set("X-Redmine-API-Key", c.apiKey)
    httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")

    resp, err := c.http.Do(httpReq)
    if err != nil {
        c.log.Error().Err(err).Msg("redmine: create issue request failed")
        return -1, fmt.Sprintf("request failed: %v", err), 0
    }
    defer resp.Body.Close()
    bodyBytes, _ := io.ReadAll(resp.Body)
    body := string(bodyBytes)

    issueID := 0
    if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
        var out struct {
            Issue struct{ ID int `json:"id"` } `json:"issue"`
        }
        if err := json.Unmarshal(bodyBytes, &out); err == nil {
            issueID = out.Issue.ID
        }
        if issueID == 0 {
            c.log.Warn().Str("body", clip(body, 500)).Msg("redmine: created but no issue id in response")
        } else {
            c.log.Info().Int("status", resp.StatusCode).Int("issue_id", issueID).Msg("redmine: issue created")
        }
    } else {
        c.log.Error().Int("status", resp.StatusCode).Str("body", clip(body, 500)).Msg("redmine: create issue failed")
    }
    return resp.StatusCode, body, issueID
}

// IssueURL builds the browser-facing link for a created issue.
func (c *Client) IssueURL(issueID int) string {
    if c.baseURL == "" || issueID == 0 { return "" }
    return fmt.Sprintf("%s/issues/%d", c.baseURL, issueID)
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (int, string) {
    u := c.baseURL + path
    if len(q) > 0 { u += "?" + q.Encode() }
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
    if err != nil { return -1, fmt.Sprintf("request failed: %v", err) }
    req.Header.Set("X-Redmine-API-Key", c.apiKey)
    resp, err := c.http.Do(req)
    if err != nil { return -1, fmt.Sprintf("request failed: %v", err) }
    defer resp.Body.Close()
    b, _ := io.ReadAll(resp.Body)
    return resp.StatusCode, string(b)
}

func clip(s string, n int) string {
    r := []rune(s)
    if len(r) <= n { return s }
    return string(r[:n])
}
