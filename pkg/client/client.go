// Package client is a thin HTTP client for cross-peer storage calls: the
// concrete ProxyClient a node's storage façade dials when it has neither a
// local cache nor a bucket of its own configured.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/serval-mesh/agent/pkg/servalerr"
	"github.com/serval-mesh/agent/pkg/types"
)

const defaultTimeout = 10 * time.Second

// Client calls another agent's storage HTTP surface directly, bypassing
// the general-purpose role relay in pkg/proxy. It is built fresh per call
// by storage.ProxyDialer, pointed at whichever storage peer the mesh
// currently reports.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a Client against a peer's base HTTP address, e.g.
// "10.0.1.4:7800".
func NewClient(addr string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    fmt.Sprintf("http://%s", addr),
	}
}

// FetchManifest implements storage.ProxyClient.
func (c *Client) FetchManifest(ctx context.Context, fqName string) (types.Manifest, error) {
	var m types.Manifest
	body, err := c.get(ctx, "/v1/storage/manifests/"+url.PathEscape(fqName))
	if err != nil {
		return m, err
	}
	if err := toml.Unmarshal(body, &m); err != nil {
		return m, servalerr.Wrap(servalerr.KindTransport, "decode manifest from peer", err)
	}
	return m, nil
}

// StoreManifest implements storage.ProxyClient.
func (c *Client) StoreManifest(ctx context.Context, m types.Manifest) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return servalerr.Wrap(servalerr.KindTransport, "encode manifest for peer", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/v1/storage/manifests", data)
	return err
}

// FetchExecutable implements storage.ProxyClient.
func (c *Client) FetchExecutable(ctx context.Context, fqName, version string) ([]byte, error) {
	path := fmt.Sprintf("/v1/storage/manifests/%s/executable/%s", url.PathEscape(fqName), url.PathEscape(version))
	return c.get(ctx, path)
}

// StoreExecutable implements storage.ProxyClient.
func (c *Client) StoreExecutable(ctx context.Context, fqName, version string, data []byte) error {
	path := fmt.Sprintf("/v1/storage/manifests/%s/executable/%s", url.PathEscape(fqName), url.PathEscape(version))
	_, err := c.do(ctx, http.MethodPut, path, data)
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindTransport, "build request to storage peer", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindTransport, "request to storage peer failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindTransport, "read response from storage peer", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, servalerr.New(servalerr.KindNotFound, fmt.Sprintf("peer reported not found for %s", path))
	case resp.StatusCode >= 400:
		return nil, servalerr.New(servalerr.KindTransport, fmt.Sprintf("peer returned %d for %s: %s", resp.StatusCode, path, string(respBody)))
	}

	return respBody, nil
}
