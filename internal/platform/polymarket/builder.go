package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opipolix/webgate/internal/crypto"
)

// BuilderHeaderSource produces the POLY_BUILDER_* attribution headers
// attached to order submissions. Local credentials sign in-process; a
// remote source delegates to a signing service so the builder secret never
// ships with the gateway.
type BuilderHeaderSource interface {
	Headers(ctx context.Context, method, path, body string) (map[string]string, error)
}

// LocalBuilder signs attribution headers with in-process credentials.
type LocalBuilder struct {
	creds crypto.BuilderCreds
}

// NewLocalBuilder wraps builder API credentials.
func NewLocalBuilder(key, secret, passphrase string) *LocalBuilder {
	return &LocalBuilder{creds: crypto.BuilderCreds{
		Key:        key,
		Secret:     secret,
		Passphrase: passphrase,
	}}
}

func (b *LocalBuilder) Headers(_ context.Context, method, path, body string) (map[string]string, error) {
	return b.creds.Headers(method, path, body), nil
}

// RemoteBuilder fetches attribution headers from an external signing
// service.
type RemoteBuilder struct {
	url        string
	httpClient *http.Client
}

// NewRemoteBuilder points at a builder signing service.
func NewRemoteBuilder(url string) *RemoteBuilder {
	return &RemoteBuilder{
		url:        url,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

func (b *RemoteBuilder) Headers(ctx context.Context, method, path, body string) (map[string]string, error) {
	payload, err := json.Marshal(map[string]any{
		"method":    method,
		"path":      path,
		"body":      body,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("polymarket/builder: marshal signing request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("polymarket/builder: create signing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/builder: signing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/builder: read signing response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polymarket/builder: signing service HTTP %d: %s", resp.StatusCode, respBody)
	}

	var headers map[string]string
	if err := json.Unmarshal(respBody, &headers); err != nil {
		return nil, fmt.Errorf("polymarket/builder: decode signing response: %w", err)
	}
	return headers, nil
}
