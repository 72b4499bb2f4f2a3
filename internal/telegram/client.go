// Package telegram reads channel messages through the message gateway, an
// HTTP bridge that holds the upstream sessions.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"horse.fit/cargoscoop/internal/httpx"
	"horse.fit/cargoscoop/internal/textnorm"
)

// Sender is the author of a message as reported by the gateway.
type Sender struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Phone     string `json:"phone"`
}

// Message is one channel post. A forward origin, when the gateway sends
// one, is not decoded: forwarded posts are gated like any other.
type Message struct {
	ID     int64   `json:"id"`
	Text   string  `json:"text"`
	Date   int64   `json:"date"`
	Sender *Sender `json:"sender,omitempty"`
}

// Sent is the message timestamp in UTC.
func (m Message) Sent() time.Time {
	return time.Unix(m.Date, 0).UTC()
}

// Normalized converts m into the quality gate's message.
func (m Message) Normalized() textnorm.Message {
	out := textnorm.Message{ID: m.ID, Text: m.Text, Sent: m.Sent()}
	if m.Sender != nil {
		out.Sender = &textnorm.Sender{
			ID:        m.Sender.ID,
			FirstName: m.Sender.FirstName,
			Username:  m.Sender.Username,
			Phone:     m.Sender.Phone,
		}
	}
	return out
}

type Channel struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type messagesResponse struct {
	Messages []Message `json:"messages"`
}

type Config struct {
	Endpoint string
	Token    string
	Session  string
	RPS      float64
	Timeout  time.Duration
	Retry    httpx.Policy
}

// Client talks to the gateway on behalf of one session. Each session has
// its own rate limiter.
type Client struct {
	endpoint  string
	token     string
	session   string
	requester *httpx.Requester
}

func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("gateway endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse gateway endpoint: %w", err)
	}
	session := strings.TrimSpace(cfg.Session)
	if session == "" {
		session = "main"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.Token),
		session:  session,
		requester: &httpx.Requester{
			Client:  &http.Client{Timeout: timeout},
			Limiter: httpx.NewLimiter(cfg.RPS),
			Policy:  cfg.Retry,
		},
	}, nil
}

func (c *Client) Session() string { return c.session }

// Messages returns up to limit messages newer than minID, newest first.
func (c *Client) Messages(ctx context.Context, channel string, minID int64, limit int) ([]Message, error) {
	params := url.Values{}
	if minID > 0 {
		params.Set("min_id", strconv.FormatInt(minID, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out messagesResponse
	if err := c.get(ctx, "/channels/"+url.PathEscape(channel)+"/messages", params, &out); err != nil {
		return nil, fmt.Errorf("messages of %s: %w", channel, err)
	}
	return out.Messages, nil
}

// MessagesByID returns the messages among ids that still exist.
func (c *Client) MessagesByID(ctx context.Context, channel string, ids []int64) ([]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	params := url.Values{"ids": {strings.Join(parts, ",")}}
	var out messagesResponse
	if err := c.get(ctx, "/channels/"+url.PathEscape(channel)+"/messages", params, &out); err != nil {
		return nil, fmt.Errorf("messages of %s by id: %w", channel, err)
	}
	return out.Messages, nil
}

func (c *Client) Channel(ctx context.Context, channel string) (Channel, error) {
	var out Channel
	if err := c.get(ctx, "/channels/"+url.PathEscape(channel), nil, &out); err != nil {
		return Channel{}, fmt.Errorf("channel %s: %w", channel, err)
	}
	return out, nil
}

// User returns the profile of a sender.
func (c *Client) User(ctx context.Context, id int64) (Sender, error) {
	var out Sender
	if err := c.get(ctx, "/users/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return Sender{}, fmt.Errorf("user %d: %w", id, err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dst any) error {
	target := c.endpoint + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	body, err := c.requester.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Session", c.session)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
