package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"gamefinder/internal/core/domain"
)

// DefaultAPIBaseURL is the Helix API root.
const DefaultAPIBaseURL = "https://api.twitch.tv/helix"

// pageSize is the Helix maximum for "first". Only the first page is read.
const pageSize = 100

// Client implements ports.Platform on top of an Executor.
type Client struct {
	exec   *Executor
	logger *slog.Logger
}

// NewClient creates a new Client.
func NewClient(exec *Executor, logger *slog.Logger) *Client {
	return &Client{exec: exec, logger: logger}
}

// Helix wraps every list response in {"data": [...]}.
type page[T any] struct {
	Data []T `json:"data"`
}

type helixUser struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

// ResolveUserID looks up a login name. Zero matches yield FailureNotFound.
func (c *Client) ResolveUserID(ctx context.Context, token, username string) domain.Outcome[string] {
	users, err := get[helixUser](ctx, c.exec, Request{
		Endpoint: "users",
		Query:    url.Values{"login": {username}},
		Token:    token,
	})
	if err != nil {
		return degrade(c.logger, domain.Fail[string](err), "users", username)
	}
	if len(users) == 0 || users[0].ID == "" {
		return domain.Fail[string](fmt.Errorf("user %q: %w", username, domain.ErrNotFound))
	}
	return domain.Succeed(users[0].ID)
}

// ListVideos returns up to one page of videos for userID.
func (c *Client) ListVideos(ctx context.Context, token, userID string) domain.Outcome[[]domain.VideoRecord] {
	videos, err := get[domain.VideoRecord](ctx, c.exec, Request{
		Endpoint: "videos",
		Query:    url.Values{"user_id": {userID}, "first": {strconv.Itoa(pageSize)}},
		Token:    token,
	})
	if err != nil {
		return degrade(c.logger, domain.Fail[[]domain.VideoRecord](err), "videos", userID)
	}
	return domain.Succeed(videos)
}

// ListClips returns up to one page of clips for userID's channel.
func (c *Client) ListClips(ctx context.Context, token, userID string) domain.Outcome[[]domain.ClipRecord] {
	clips, err := get[domain.ClipRecord](ctx, c.exec, Request{
		Endpoint: "clips",
		Query:    url.Values{"broadcaster_id": {userID}, "first": {strconv.Itoa(pageSize)}},
		Token:    token,
	})
	if err != nil {
		return degrade(c.logger, domain.Fail[[]domain.ClipRecord](err), "clips", userID)
	}
	return domain.Succeed(clips)
}

func get[T any](ctx context.Context, exec *Executor, req Request) ([]T, error) {
	resp, err := exec.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	var p page[T]
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.Endpoint, err)
	}
	return p.Data, nil
}

// degrade logs a failed outcome and returns it unchanged.
func degrade[T any](logger *slog.Logger, o domain.Outcome[T], endpoint, subject string) domain.Outcome[T] {
	if o.Failure != domain.FailureCancelled {
		logger.Warn("fetch degraded to empty result",
			slog.String("endpoint", endpoint),
			slog.String("subject", subject),
			slog.String("reason", string(o.Failure)),
			slog.Any("error", o.Err),
		)
	}
	return o
}
