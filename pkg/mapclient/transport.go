package mapclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
)

// Response is the raw answer of the service to one request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs one request against the service. Paths are relative to the account
// root, e.g. "/map/foo/tree/0". A non-OK status is not an error at this level; errors are
// reserved for transport failures.
type Transport interface {
	Request(ctx context.Context, method, path string, body []byte) (*Response, error)
}

// HTTPTransport is a Transport talking to the service over HTTP.
type HTTPTransport struct {
	baseURL string
	account string
	apiKey  string
	client  *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport returns a transport for the given account. If httpClient is nil, a client
// with the given timeout is created.
func NewHTTPTransport(baseURL, account, apiKey string, httpClient *http.Client,
	timeout time.Duration) *HTTPTransport {

	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   30 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				MaxIdleConnsPerHost:   10,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}
	return &HTTPTransport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		account: account,
		apiKey:  apiKey,
		client:  httpClient,
	}
}

// URL returns the absolute URL for a path relative to the account.
func (t *HTTPTransport) URL(path string) string {
	return t.baseURL + "/v1/account/" + t.account + path
}

func (t *HTTPTransport) Request(ctx context.Context, method, path string, body []byte,
) (*Response, error) {

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.URL(path), reader)
	if err != nil {
		return nil, fmt.Errorf("Request | NewRequest | %w", err)
	}
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Key "+t.apiKey)
	}

	glog.V(2).Infof("%s %s", method, req.URL)
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Request | Do | %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Request | ReadAll | %w", err)
	}
	glog.V(2).Infof("%s %s -> %d (%d bytes)", method, req.URL, resp.StatusCode, len(data))
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
