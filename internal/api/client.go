// Package api reads lessons, professors and packages from the school's REST API.
// The API owns persistence, authorization and payments; this client only
// performs authenticated GETs and decodes the JSON lists.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tutorcal/internal/fetch"
	"tutorcal/internal/model"
)

// Client is a read-only REST API client.
type Client struct {
	baseURL string
	token   string
	fetcher *fetch.Fetcher
}

// NewClient returns a client for baseURL. token, when non-empty, is sent as
// a Bearer token.
func NewClient(baseURL, token string, fetcher *fetch.Fetcher) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api: base URL is empty")
	}
	if fetcher == nil {
		return nil, errors.New("api: fetcher is nil")
	}
	return &Client{baseURL: baseURL, token: token, fetcher: fetcher}, nil
}

// Lessons returns every lesson visible to the configured token.
func (c *Client) Lessons(ctx context.Context) ([]model.Lesson, error) {
	var out []model.Lesson
	if err := c.getJSON(ctx, "/lessons", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Professors returns the professor list.
func (c *Client) Professors(ctx context.Context) ([]model.Professor, error) {
	var out []model.Professor
	if err := c.getJSON(ctx, "/professors", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Packages returns the prepaid hour packages.
func (c *Client) Packages(ctx context.Context) ([]model.Package, error) {
	var out []model.Package
	if err := c.getJSON(ctx, "/packages", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	src := fetch.Source{
		ID:     "api" + path,
		URL:    c.baseURL + path,
		Header: http.Header{"Accept": {"application/json"}},
	}
	if c.token != "" {
		src.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.fetcher.Fetch(ctx, src)
	if err != nil {
		return fmt.Errorf("api: GET %s: %w", path, err)
	}
	if err := json.Unmarshal(res.Body, v); err != nil {
		return fmt.Errorf("api: decode %s: %w", path, err)
	}
	return nil
}
