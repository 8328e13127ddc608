package fga

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient talks to an OpenFGA-compatible authorization store over its
// REST API.
type HTTPClient struct {
	apiURL  string
	storeID string
	modelID string
	http    *http.Client
}

// Config holds the settings for an HTTPClient.
type Config struct {
	// APIURL is the base URL of the authorization store, e.g.
	// "http://localhost:8080".
	APIURL string

	// StoreID identifies the store holding the relationship graph.
	StoreID string

	// ModelID pins check and list operations to one authorization model
	// version. Optional; the store uses its latest model when empty.
	ModelID string

	// Timeout bounds each individual API call. Context deadlines shorter
	// than this still apply.
	Timeout time.Duration
}

// NewHTTPClient creates a client for the authorization store's REST API.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		apiURL:  cfg.APIURL,
		storeID: cfg.StoreID,
		modelID: cfg.ModelID,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authorization store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("authorization store returned %d: %s", resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Check reports whether user holds relation on object.
func (c *HTTPClient) Check(ctx context.Context, user, relation, object string) (bool, error) {
	body := map[string]interface{}{
		"tuple_key": TupleKey{User: user, Relation: relation, Object: object},
	}
	if c.modelID != "" {
		body["authorization_model_id"] = c.modelID
	}

	var out struct {
		Allowed bool `json:"allowed"`
	}
	if err := c.post(ctx, "/stores/"+c.storeID+"/check", body, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

// Write applies tuple writes and deletes in one batched call. Calling with
// both slices empty is a no-op.
func (c *HTTPClient) Write(ctx context.Context, writes, deletes []TupleKey) error {
	if len(writes) == 0 && len(deletes) == 0 {
		return nil
	}

	body := map[string]interface{}{}
	if len(writes) > 0 {
		body["writes"] = map[string]interface{}{"tuple_keys": writes}
	}
	if len(deletes) > 0 {
		body["deletes"] = map[string]interface{}{"tuple_keys": deletes}
	}
	if c.modelID != "" {
		body["authorization_model_id"] = c.modelID
	}

	return c.post(ctx, "/stores/"+c.storeID+"/write", body, nil)
}

// ListUsers returns the "user:{id}" refs holding relation on the object,
// restricted to subjects of userTypeFilter.
func (c *HTTPClient) ListUsers(ctx context.Context, objectType, objectID, relation, userTypeFilter string) ([]string, error) {
	body := map[string]interface{}{
		"object":       map[string]string{"type": objectType, "id": objectID},
		"relation":     relation,
		"user_filters": []map[string]string{{"type": userTypeFilter}},
	}
	if c.modelID != "" {
		body["authorization_model_id"] = c.modelID
	}

	var out struct {
		Users []struct {
			Object *struct {
				Type string `json:"type"`
				ID   string `json:"id"`
			} `json:"object"`
		} `json:"users"`
	}
	if err := c.post(ctx, "/stores/"+c.storeID+"/list-users", body, &out); err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(out.Users))
	for _, u := range out.Users {
		if u.Object == nil || u.Object.ID == "" {
			continue
		}
		refs = append(refs, ObjectRef(u.Object.Type, u.Object.ID))
	}
	return refs, nil
}

// ListObjects returns the "{type}:{id}" refs of objectType on which user
// holds relation.
func (c *HTTPClient) ListObjects(ctx context.Context, user, relation, objectType string) ([]string, error) {
	body := map[string]interface{}{
		"user":     user,
		"relation": relation,
		"type":     objectType,
	}
	if c.modelID != "" {
		body["authorization_model_id"] = c.modelID
	}

	var out struct {
		Objects []string `json:"objects"`
	}
	if err := c.post(ctx, "/stores/"+c.storeID+"/list-objects", body, &out); err != nil {
		return nil, err
	}
	return out.Objects, nil
}

// ReadChanges returns change-feed entries at or after since, following
// continuation tokens until the feed is drained.
func (c *HTTPClient) ReadChanges(ctx context.Context, since time.Time) ([]TupleChange, error) {
	var (
		changes []TupleChange
		token   string
	)

	for {
		params := url.Values{}
		params.Set("page_size", "100")
		if !since.IsZero() {
			params.Set("start_time", since.UTC().Format(time.RFC3339Nano))
		}
		if token != "" {
			params.Set("continuation_token", token)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.apiURL+"/stores/"+c.storeID+"/changes?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("authorization store request failed: %w", err)
		}

		var out struct {
			Changes           []TupleChange `json:"changes"`
			ContinuationToken string        `json:"continuation_token"`
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("authorization store returned %d reading changes", resp.StatusCode)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode changes: %w", err)
		}

		changes = append(changes, out.Changes...)

		// The feed returns its position even on an empty page; an empty
		// page means we have drained everything available now.
		if len(out.Changes) == 0 || out.ContinuationToken == "" || out.ContinuationToken == token {
			return changes, nil
		}
		token = out.ContinuationToken
	}
}
