package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decentrl/decentrl-go/diddoc"
)

func TestStripFragment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "did:web:a.example:identity:1#key-1", want: "did:web:a.example:identity:1"},
		{in: "did:web:a.example:identity:1", want: "did:web:a.example:identity:1"},
		{in: "#key-1", want: ""},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFragment(tt.in))
	}
}

func testDocument(t *testing.T, did string) *diddoc.Document {
	t.Helper()
	doc, err := diddoc.NewBuilder().SetID(did).Build()
	require.NoError(t, err)
	return doc
}

func TestWebResolverFetchesDocument(t *testing.T) {
	did := "did:web:a.example:identity:1"
	doc := testDocument(t, did)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, err := url.PathUnescape(r.URL.EscapedPath())
		require.NoError(t, err)
		require.Equal(t, "/"+did+"/did.json", path)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	defer server.Close()

	resolved, err := NewWebResolver(server.URL).Resolve(context.Background(), did+"#key-1")
	require.NoError(t, err)
	assert.Equal(t, did, resolved.ID)
}

func TestWebResolverFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name:    "not found",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
		},
		{
			name: "schema violation",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"no":"document"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewWebResolver(server.URL).Resolve(context.Background(), "did:web:a.example:identity:1")
			assert.ErrorIs(t, err, ErrDidResolutionFailed)
		})
	}
}

func TestWebResolverRejectsEmptyDid(t *testing.T) {
	_, err := NewWebResolver("https://registry.example").Resolve(context.Background(), "#fragment-only")
	assert.ErrorIs(t, err, ErrDidResolutionFailed)
}

func TestCachingResolverHitsInnerOnce(t *testing.T) {
	did := "did:web:a.example:identity:1"
	doc := testDocument(t, did)

	calls := 0
	inner := Func(func(ctx context.Context, didOrKid string) (*diddoc.Document, error) {
		calls++
		return doc, nil
	})

	caching := NewCachingResolver(inner, NewCache())

	for i := 0; i < 3; i++ {
		resolved, err := caching.Resolve(context.Background(), did+"#key-1")
		require.NoError(t, err)
		assert.Equal(t, did, resolved.ID)
	}
	assert.Equal(t, 1, calls, "repeated resolutions must be served from cache")
}

func TestCachingResolverDoesNotCacheFailures(t *testing.T) {
	did := "did:web:a.example:identity:1"
	doc := testDocument(t, did)

	calls := 0
	inner := Func(func(ctx context.Context, didOrKid string) (*diddoc.Document, error) {
		calls++
		if calls == 1 {
			return nil, ErrDidResolutionFailed
		}
		return doc, nil
	})

	caching := NewCachingResolver(inner, nil)

	_, err := caching.Resolve(context.Background(), did)
	assert.ErrorIs(t, err, ErrDidResolutionFailed)

	resolved, err := caching.Resolve(context.Background(), did)
	require.NoError(t, err)
	assert.Equal(t, did, resolved.ID)
	assert.Equal(t, 2, calls)
}
