package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// url builds a complete URL by appending the path to the base URL.
func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// doRequest performs an HTTP request. A non-empty token is sent as a bearer
// credential.
func (c *Client) doRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, in, out any, expectedStatus int) error {
	return c.sendJSON(ctx, http.MethodPost, path, token, in, out, expectedStatus)
}

func (c *Client) putJSON(ctx context.Context, path, token string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPut, path, token, in, out, http.StatusOK)
}

func (c *Client) sendJSON(ctx context.Context, method, path, token string, in, out any, expectedStatus int) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.doRequest(ctx, method, path, token, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return decodeJSON(resp, out, expectedStatus)
}

func (c *Client) getJSON(ctx context.Context, path, token string, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out, http.StatusOK)
}

func (c *Client) postNoContent(ctx context.Context, path, token string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, path, token, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// decodeJSON decodes a JSON response into target, or returns an *APIError
// when the status is not the expected one.
func decodeJSON(resp *http.Response, target any, expectedStatus int) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// checkStatusNoContent returns an *APIError if the status is not 204.
func checkStatusNoContent(resp *http.Response) error {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return parseErrorResponse(resp, bodyBytes)
	}

	return nil
}
