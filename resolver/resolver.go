// Package resolver turns DIDs (or DID-scoped key ids) into DID documents.
// Resolution is the only network-facing dependency of the protocol core; the
// codecs and the contract machine take a Resolver and stay transport-free.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/decentrl/decentrl-go/diddoc"
)

// ErrDidResolutionFailed wraps every transport or validation fault during
// resolution.
var ErrDidResolutionFailed = errors.New("did resolution failed")

// Resolver resolves a DID, or a DID-scoped verification-method id, to its
// published DID document.
type Resolver interface {
	Resolve(ctx context.Context, didOrKid string) (*diddoc.Document, error)
}

// Func adapts a plain function to the Resolver interface.
type Func func(ctx context.Context, didOrKid string) (*diddoc.Document, error)

// Resolve implements Resolver.
func (f Func) Resolve(ctx context.Context, didOrKid string) (*diddoc.Document, error) {
	return f(ctx, didOrKid)
}

// StripFragment reduces a DID-scoped key id to its DID.
func StripFragment(didOrKid string) string {
	did, _, _ := strings.Cut(didOrKid, "#")
	return did
}

// WebResolver fetches documents from a registry over HTTPS following the
// registry contract: GET <base>/<did>/did.json.
type WebResolver struct {
	baseURL string
	client  *http.Client
}

// WebOption configures a WebResolver.
type WebOption func(*WebResolver)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) WebOption {
	return func(r *WebResolver) {
		r.client = client
	}
}

// NewWebResolver creates a resolver against the given registry base URL.
func NewWebResolver(baseURL string, opts ...WebOption) *WebResolver {
	r := &WebResolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches and schema-validates the document for the given DID.
func (r *WebResolver) Resolve(ctx context.Context, didOrKid string) (*diddoc.Document, error) {
	did := StripFragment(didOrKid)
	if did == "" {
		return nil, fmt.Errorf("%w: empty did in %q", ErrDidResolutionFailed, didOrKid)
	}

	apiURL := r.baseURL + "/" + url.PathEscape(did) + "/did.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDidResolutionFailed, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDidResolutionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: registry returned %s for %s", ErrDidResolutionFailed, resp.Status, did)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDidResolutionFailed, err)
	}

	doc, err := diddoc.Load(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDidResolutionFailed, err)
	}
	return doc, nil
}
