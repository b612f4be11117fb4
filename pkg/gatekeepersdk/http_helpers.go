package gatekeepersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// url builds a complete URL by appending the path to the base URL.
func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

// doRequest performs an HTTP request with the client's HTTP client.
func (c *SDKClient) doRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return resp, nil
}

// doJSON sends v as a JSON body. A non-empty token is sent as a bearer
// credential.
func (c *SDKClient) doJSON(ctx context.Context, method, path string, v any, token string) (*http.Response, error) {
	headers := map[string]string{"Content-Type": "application/json"}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	var body io.Reader
	if v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	return c.doRequest(ctx, method, path, body, headers)
}

// doAuthRequest performs a request with the session's access token,
// refreshing it first when it has expired.
func (s *Session) doAuthRequest(ctx context.Context, method, path string, v any) (*http.Response, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.doJSON(ctx, method, path, v, token)
}

// decodeJSON decodes a JSON response into target. Any other status than
// expectedStatus is returned as *APIError.
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

// checkStatusOK drains the body and returns *APIError unless the status is
// 200.
func checkStatusOK(resp *http.Response) error {
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp, bodyBytes)
	}

	return nil
}

func (o ListOptions) encode(path string) string {
	q := url.Values{}
	if o.Filter != "" {
		q.Set("filters", o.Filter)
	}
	if o.SkipCount > 0 {
		q.Set("skipCount", strconv.Itoa(o.SkipCount))
	}
	if o.MaxResultCount > 0 {
		q.Set("maxResultCount", strconv.Itoa(o.MaxResultCount))
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
