package registry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decentrl/decentrl-go/diddoc"
	"github.com/decentrl/decentrl-go/registry"
	"github.com/decentrl/decentrl-go/resolver"
)

func submissionBody(t *testing.T, encrypted string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]string{"encryptedDidDocument": encrypted})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestRouterPublishAndResolve(t *testing.T) {
	f := newRegistryFixture(t)
	owner, doc := newOwner(t)
	router := registry.NewRouter(f.service, zerolog.Nop())

	submission, err := registry.EncryptSubmission(owner, f.document, doc)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", submissionBody(t, submission)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Did     string `json:"did"`
		Version int64  `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, owner.Did, created.Did)
	assert.Equal(t, int64(1), created.Version)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+url.PathEscape(owner.Did)+"/did.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resolved, err := diddoc.Load(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, owner.Did, resolved.ID)
}

func TestRouterServesOwnDocument(t *testing.T) {
	f := newRegistryFixture(t)
	router := registry.NewRouter(f.service, zerolog.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/did.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := diddoc.Load(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, f.identity.Did, doc.ID)
}

func TestRouterErrorMapping(t *testing.T) {
	f := newRegistryFixture(t)
	owner, doc := newOwner(t)
	router := registry.NewRouter(f.service, zerolog.Nop())

	goodSubmission, err := registry.EncryptSubmission(owner, f.document, doc)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		target string
		body   *bytes.Reader
		status int
	}{
		{
			name:   "publish with empty body",
			method: http.MethodPost,
			target: "/",
			body:   bytes.NewReader(nil),
			status: http.StatusBadRequest,
		},
		{
			name:   "publish undecryptable submission",
			method: http.MethodPost,
			target: "/",
			body:   submissionBody(t, "garbage"),
			status: http.StatusBadRequest,
		},
		{
			name:   "update before publish",
			method: http.MethodPut,
			target: "/",
			body:   submissionBody(t, goodSubmission),
			status: http.StatusNotFound,
		},
		{
			name:   "resolve unknown did",
			method: http.MethodGet,
			target: "/" + url.PathEscape("did:web:a.example:identity:missing") + "/did.json",
			body:   bytes.NewReader(nil),
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, tt.body))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRouterUpdateRoundTrip(t *testing.T) {
	f := newRegistryFixture(t)
	owner, doc := newOwner(t)
	router := registry.NewRouter(f.service, zerolog.Nop())

	submission, err := registry.EncryptSubmission(owner, f.document, doc)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", submissionBody(t, submission)))
	require.Equal(t, http.StatusCreated, rec.Code)

	updatedDoc := *doc
	updatedDoc.Alias = "renamed"
	updateSubmission, err := registry.EncryptSubmission(owner, f.document, &updatedDoc)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", submissionBody(t, updateSubmission)))
	require.Equal(t, http.StatusOK, rec.Code)

	var updated struct {
		Version int64 `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, int64(2), updated.Version)
}

func TestRouterRateLimit(t *testing.T) {
	f := newRegistryFixture(t)
	router := registry.NewRouter(f.service, zerolog.Nop(), registry.WithRateLimit(1, 2))

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/did.json", nil))
		statuses = append(statuses, rec.Code)
	}

	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Equal(t, http.StatusOK, statuses[1])
	assert.Contains(t, statuses[2:], http.StatusTooManyRequests)
}

// The web resolver and the registry router speak the same path contract.
func TestRouterWorksWithWebResolver(t *testing.T) {
	f := newRegistryFixture(t)
	owner, doc := newOwner(t)
	router := registry.NewRouter(f.service, zerolog.Nop())

	submission, err := registry.EncryptSubmission(owner, f.document, doc)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", submissionBody(t, submission)))
	require.Equal(t, http.StatusCreated, rec.Code)

	server := httptest.NewServer(router)
	defer server.Close()

	resolved, err := resolver.NewWebResolver(server.URL).Resolve(context.Background(), owner.SigningKeyID())
	require.NoError(t, err)
	assert.Equal(t, owner.Did, resolved.ID)
}
