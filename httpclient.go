package main

import (
	"net/http"
	"time"
)

const defaultHTTPTimeout = 60 * time.Second

// HTTPClient is the part of *http.Client the warehouse client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient creates a new HTTP client with timeout
func NewHTTPClient(timeout time.Duration) HTTPClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &RealHTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// RealHTTPClient implements HTTPClient
type RealHTTPClient struct {
	client *http.Client
}

func (c *RealHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}
