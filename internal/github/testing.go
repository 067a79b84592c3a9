// Package github provides testing helpers for the GitHub client.
package github

import (
	"net/http"
	"net/url"
)

// NewTestClient creates a GitHub client for testing with a custom HTTP
// client and base URL. This allows tests to use httptest.Server for
// mocking GitHub API responses; baseURL should be the test server URL.
func NewTestClient(httpClient *http.Client, baseURL string) (*Client, error) {
	c := NewClient("")

	parsedURL, err := url.Parse(baseURL + "/")
	if err != nil {
		return nil, err
	}

	c.client.BaseURL = parsedURL
	c.client.UploadURL = parsedURL
	c.httpClient = httpClient
	return c, nil
}
