package slurk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// API is the slurk REST control channel: it provisions layouts, permission
// sets, rooms, tokens and users before a run starts.
type API struct {
	base   string
	token  string
	http   *http.Client
	logger zerolog.Logger
}

// NewAPI builds a client for the slurk server at uri, authorized with the
// admin token.
func NewAPI(uri string, adminToken string) *API {
	return &API{
		base:   strings.TrimRight(uri, "/") + "/slurk/api",
		token:  adminToken,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: log.With().Str("component", "slurk.api").Logger(),
	}
}

// CreateLayout creates a room layout and returns its id.
func (a *API) CreateLayout(ctx context.Context, layout map[string]any) (int, error) {
	return a.createID(ctx, "/layouts", layout, "create room layout")
}

// CreatePermissions creates a permission set and returns its id.
func (a *API) CreatePermissions(ctx context.Context, permissions map[string]any) (int, error) {
	return a.createID(ctx, "/permissions", permissions, "create permissions")
}

// CreateRoom creates a room from a layout and returns its id.
func (a *API) CreateRoom(ctx context.Context, layoutID int) (int, error) {
	return a.createID(ctx, "/rooms", map[string]any{"layout_id": layoutID}, "create room")
}

// CreateTask creates a task bound to a layout and returns its id.
func (a *API) CreateTask(ctx context.Context, name string, numUsers int, layoutID int) (int, error) {
	payload := map[string]any{"name": name, "num_users": numUsers, "layout_id": layoutID}
	return a.createID(ctx, "/tasks", payload, fmt.Sprintf("create task: %s", name))
}

// CreateToken mints a single-use join token for a room under a permission
// set and returns the token id.
func (a *API) CreateToken(ctx context.Context, permissionsID int, roomID int) (string, error) {
	payload := map[string]any{
		"permissions_id":     permissionsID,
		"room_id":            roomID,
		"registrations_left": 1,
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := a.create(ctx, "/tokens", payload, "create token", &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateUser registers a user identity against a token and returns its id.
func (a *API) CreateUser(ctx context.Context, name string, tokenID string) (int, error) {
	payload := map[string]any{"name": name, "token_id": tokenID}
	return a.createID(ctx, "/users", payload, fmt.Sprintf("create user: %s", name))
}

// JoinRoom adds a user to a room.
func (a *API) JoinRoom(ctx context.Context, userID int, roomID int) error {
	path := fmt.Sprintf("/users/%d/rooms/%d", userID, roomID)
	return a.create(ctx, path, nil, fmt.Sprintf("user %d joins room %d", userID, roomID), nil)
}

func (a *API) createID(ctx context.Context, path string, payload any, description string) (int, error) {
	var out struct {
		ID int `json:"id"`
	}
	if err := a.create(ctx, path, payload, description, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (a *API) create(ctx context.Context, path string, payload any, description string, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrapf(err, "encoding %s", description)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, body)
	if err != nil {
		return errors.Wrapf(err, "building %s", description)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s", description)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "reading response of %s", description)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.Error().Int("status", resp.StatusCode).Str("op", description).Msg("slurk api call unsuccessful")
		return errors.Errorf("`%s` unsuccessful: %d", description, resp.StatusCode)
	}
	a.logger.Debug().Str("op", description).Msg("slurk api call successful")
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(data, out), "decoding response of %s", description)
}
