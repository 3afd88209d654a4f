// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/wren/internal/server"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const defaultAddress = "127.0.0.1:18790"

// defaultHTTPClient is used by commands that talk to a running server.
// A turn waits on transcription, generation and synthesis, hence the long
// timeout. Tests replace it.
var defaultHTTPClient = &http.Client{
	Timeout: 3 * time.Minute,
}

// apiClient provides HTTP access to a running wren server.
type apiClient struct {
	baseURL string
	addr    string
	owner   string
	http    *http.Client
}

// addClientFlags registers --address and --owner on cmd and its children.
func addClientFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("address", defaultAddress, "server address (host:port)")
	cmd.PersistentFlags().String("owner", "", "user to act as (default $WREN_OWNER or the login name)")
}

func newAPIClient(cmd *cobra.Command) *apiClient {
	addr, _ := cmd.Flags().GetString("address")
	owner, _ := cmd.Flags().GetString("owner")
	return &apiClient{
		baseURL: "http://" + addr,
		addr:    addr,
		owner:   resolveOwner(owner),
		http:    defaultHTTPClient,
	}
}

func resolveOwner(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("WREN_OWNER"); env != "" {
		return env
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

// do sends body as JSON and decodes a JSON response into dest. Either may
// be nil.
func (c *apiClient) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return wrenerr.Errorf(wrenerr.CodeCLIRequest, "encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	resp, err := c.send(ctx, method, path, reader)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return wrenerr.Errorf(wrenerr.CodeCLIRequest, "invalid response: %w", err)
	}
	return nil
}

// download writes the raw response body of a GET to w.
func (c *apiClient) download(ctx context.Context, path string, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return wrenerr.Errorf(wrenerr.CodeCLIRequest, "reading response: %w", err)
	}
	return nil
}

func (c *apiClient) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, wrenerr.Errorf(wrenerr.CodeCLIRequest, "building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(server.OwnerHeader, c.owner)

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return nil, wrenerr.Errorf(wrenerr.CodeCLIServerDown, "wren server at %s is not running (connection refused)", c.addr)
		}
		return nil, wrenerr.Errorf(wrenerr.CodeCLIRequest, "request failed: %w", err)
	}

	if resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		return nil, problemError(resp)
	}
	return resp, nil
}

// problemError turns an RFC 9457 response into an error carrying the
// server's error code.
func problemError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var p struct {
		Detail string `json:"detail"`
		Errors []struct {
			Location string `json:"location"`
			Value    any    `json:"value"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.Detail == "" {
		return wrenerr.Errorf(wrenerr.CodeCLIRequest, "server returned status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	fields := []wrenerr.Attr{wrenerr.Field("status", resp.StatusCode)}
	for _, e := range p.Errors {
		if e.Location == "code" {
			fields = append(fields, wrenerr.Field("server_code", e.Value))
		}
	}
	return wrenerr.New(wrenerr.CodeCLIRequest, fmt.Sprintf("server returned status %d: %s", resp.StatusCode, p.Detail), fields...)
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
