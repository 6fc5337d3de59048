package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/botforge/botforge/internal/infrastructure/logger"
)

// Client talks to a running control plane over its admin API. The
// cookie jar keeps the session issued by Login, so later calls and the
// websocket dial are authenticated the same way a browser would be.
type Client struct {
	base string
	jar  http.CookieJar
	http *http.Client
}

// NewClient normalizes the server address and prepares the HTTP client.
// Bare host:port addresses get an http scheme.
func NewClient(server string) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(server), "/")
	if base == "" {
		return nil, fmt.Errorf("server address is empty")
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		base: base,
		jar:  jar,
		http: &http.Client{Jar: jar},
	}, nil
}

// Login exchanges credentials for a session cookie.
func (c *Client) Login(ctx context.Context, email, password string) error {
	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// SupportChat sends one question to the support assistant and consumes
// the SSE reply. onDelta sees every content chunk as it arrives; the
// assembled reply is returned once the server signals completion.
func (c *Client) SupportChat(ctx context.Context, message string, onDelta func(string)) (string, error) {
	payload, _ := json.Marshal(map[string]any{"message": message, "stream": true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/support/chat", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}

	var reply strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return reply.String(), nil
		}
		var chunk struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Content == "" {
			continue
		}
		reply.WriteString(chunk.Content)
		if onDelta != nil {
			onDelta(chunk.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return reply.String(), fmt.Errorf("stream interrupted: %w", err)
	}
	return reply.String(), nil
}

// RecentLogs fetches a one-shot slice of the server's debug buffer.
func (c *Client) RecentLogs(ctx context.Context, level, category string, limit int) ([]logger.Entry, int, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if level != "" {
		q.Set("level", level)
	}
	if category != "" {
		q.Set("category", category)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/debug/logs?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("connect to %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, apiError(resp)
	}

	var body struct {
		Logs  []logger.Entry `json:"logs"`
		Total int            `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("decode logs: %w", err)
	}
	return body.Logs, body.Total, nil
}

// FollowLogs dials the live log stream and hands every entry to fn
// until ctx is canceled or the server closes the socket. A normal close
// returns nil.
func (c *Client) FollowLogs(ctx context.Context, level, category string, fn func(logger.Entry)) error {
	u := "ws" + strings.TrimPrefix(c.base, "http") + "/api/debug/logs/stream"
	q := url.Values{}
	if level != "" {
		q.Set("level", level)
	}
	if category != "" {
		q.Set("category", category)
	}
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	dialer := websocket.Dialer{
		Jar:              c.jar,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("dial log stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("log stream: %w", err)
		}
		var entry logger.Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		fn(entry)
	}
}

// apiError extracts the message the admin API puts in failure envelopes.
func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return fmt.Errorf("%s", body.Message)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}
