package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ferr "forumd/internal/errors"
	"forumd/internal/retry"
	"forumd/util"
)

// Client serves the gateway from a remote forumd HTTP API.  Reads are
// retried with exponential backoff; writes are sent exactly once,
// since a retried POST could publish the same post twice.
type Client struct {
	base   string
	http   *http.Client
	policy retry.Policy
	logger *util.Logger
}

// NewClient returns a Client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *util.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("backend url %q: must be an http(s) URL", baseURL)
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &Client{
		base:   strings.TrimRight(u.String(), "/"),
		http:   &http.Client{Timeout: timeout},
		policy: retry.DefaultPolicy(),
		logger: logger,
	}, nil
}

// SetRetryPolicy replaces the schedule used for reads.
func (c *Client) SetRetryPolicy(p retry.Policy) { c.policy = p }

// wire shapes of the HTTP API

type threadJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type commentJSON struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type userJSON struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (t threadJSON) summary() ThreadSummary {
	return ThreadSummary{ID: t.ID, Title: t.Title, Author: t.Author, CreatedAt: t.CreatedAt}
}

func (c *Client) ListRecentThreads(ctx context.Context, limit int) ([]ThreadSummary, error) {
	var rows []threadJSON
	path := "/threads"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, OpListThreads, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]ThreadSummary, len(rows))
	for i, r := range rows {
		out[i] = r.summary()
	}
	return out, nil
}

func (c *Client) GetThread(ctx context.Context, id string) (*Thread, error) {
	var row threadJSON
	if err := c.do(ctx, OpGetThread, http.MethodGet, "/threads/"+url.PathEscape(id), nil, &row); err != nil {
		return nil, err
	}
	return &Thread{ThreadSummary: row.summary(), Content: row.Content}, nil
}

func (c *Client) CreateThread(ctx context.Context, title, content, author string) error {
	body := map[string]string{"title": title, "content": content, "author": author}
	return c.do(ctx, OpCreateThread, http.MethodPost, "/threads", body, nil)
}

func (c *Client) CreateComment(ctx context.Context, threadID, content, author string) error {
	body := map[string]string{"thread_id": threadID, "content": content, "author": author}
	return c.do(ctx, OpCreateComment, http.MethodPost, "/comments", body, nil)
}

func (c *Client) ListComments(ctx context.Context, threadID string) ([]Comment, error) {
	var rows []commentJSON
	path := "/threads/" + url.PathEscape(threadID) + "/comments"
	if err := c.do(ctx, OpListComments, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]Comment, len(rows))
	for i, r := range rows {
		out[i] = Comment{ID: r.ID, ThreadID: r.ThreadID, Author: r.Author, Content: r.Content, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

func (c *Client) EnsureUser(ctx context.Context, username string) (string, error) {
	var u userJSON
	if err := c.do(ctx, OpEnsureUser, http.MethodPut, "/users/"+url.PathEscape(username), nil, &u); err != nil {
		return "", err
	}
	return u.ID, nil
}

// do performs one API call.  GET and PUT are idempotent and retried.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return ferr.WrapBackend(op, err)
		}
	}

	attempt := func() error {
		err := c.roundTrip(ctx, op, method, path, payload, out)
		if err != nil && !retryable(ctx, err) {
			return retry.Permanent(err)
		}
		return err
	}

	var err error
	if method == http.MethodGet || method == http.MethodPut {
		err = c.policy.Do(ctx, attempt, func(err error, wait time.Duration) {
			c.logger.Verbose("backend %s failed, retrying in %v: %v", op, wait.Truncate(time.Millisecond), err)
		})
	} else {
		err = attempt()
	}
	if err == nil {
		return nil
	}

	var be *ferr.BackendError
	if errors.As(err, &be) {
		return be
	}
	return ferr.WrapBackend(op, err)
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, payload []byte, out interface{}) error {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ferr.BackendError{Op: op, Status: resp.StatusCode, Err: apiError(resp)}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ferr.BackendError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// apiError extracts the {"error": "..."} message of a failed response.
func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := http.StatusText(resp.StatusCode)
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", msg, ferr.ErrNotFound)
	}
	return errors.New(msg)
}

// retryable reports whether another attempt could succeed: transport
// failures and 5xx answers, as long as the caller is still waiting.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var be *ferr.BackendError
	if errors.As(err, &be) {
		return be.Status >= 500
	}
	return true
}

var _ Gateway = (*Client)(nil)
