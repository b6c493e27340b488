package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rickgao/safelift-feed/internal/model"
)

// List fetches one page of events matching f.
func (c *Client) List(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	if f.Limit > model.MaxListLimit {
		return nil, fmt.Errorf("list events: limit %d exceeds %d", f.Limit, model.MaxListLimit)
	}

	query := url.Values{}
	if f.Severity != 0 {
		query.Set("severity", strconv.Itoa(int(f.Severity)))
	}
	if f.Type != "" {
		query.Set("type", f.Type)
	}
	if f.Source != "" {
		query.Set("source", f.Source)
	}
	if f.Skip > 0 {
		query.Set("skip", strconv.Itoa(f.Skip))
	}
	if f.Limit > 0 {
		query.Set("limit", strconv.Itoa(f.Limit))
	}

	var events []model.Event
	if err := c.get(ctx, "/events", query, &events); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ListAll pages through every event matching f, pageSize at a time.
// Uses DefaultPaginationTimeout if the context has no deadline.
func (c *Client) ListAll(ctx context.Context, f model.EventFilter, pageSize int) ([]model.Event, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultPaginationTimeout)
		defer cancel()
	}
	if pageSize <= 0 || pageSize > model.MaxListLimit {
		pageSize = model.MaxListLimit
	}

	var all []model.Event
	f.Limit = pageSize
	for {
		page, err := c.List(ctx, f)
		if err != nil {
			return nil, err
		}

		all = append(all, page...)

		if len(page) < pageSize {
			break
		}
		f.Skip += len(page)
	}

	return all, nil
}

// Critical fetches events with severity >= 4, newest first.
func (c *Client) Critical(ctx context.Context, skip, limit int) ([]model.Event, error) {
	query := url.Values{}
	if skip > 0 {
		query.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var events []model.Event
	if err := c.get(ctx, "/events/critical", query, &events); err != nil {
		return nil, fmt.Errorf("critical events: %w", err)
	}
	return events, nil
}

// Get fetches a single event by id.
func (c *Client) Get(ctx context.Context, id int64) (*model.Event, error) {
	var e model.Event
	if err := c.get(ctx, "/events/"+strconv.FormatInt(id, 10), nil, &e); err != nil {
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	return &e, nil
}

// Create posts a new event and returns it as stored.
func (c *Client) Create(ctx context.Context, n model.NewEvent) (*model.Event, error) {
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	var e model.Event
	if err := c.post(ctx, "/events", n, &e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &e, nil
}

// Login exchanges a username and password for tokens.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.post(ctx, "/auth/login", LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &resp, nil
}
