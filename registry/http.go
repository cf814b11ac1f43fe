package registry

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// publishRequest is the body of POST / and PUT /.
type publishRequest struct {
	EncryptedDidDocument string `json:"encryptedDidDocument"`
}

// NewRouter wires the registry HTTP contract:
//
//	POST /                      publish a document, 201
//	PUT  /                      update a document, 200
//	GET  /{did}/did.json        resolve a stored document
//	GET  /.well-known/did.json  the registry's own document
//
// Signature and schema failures map to 400, unknown DIDs to 404.
func NewRouter(service *Service, log zerolog.Logger, opts ...RouterOption) http.Handler {
	cfg := routerConfig{requestsPerSecond: 50, burst: 100}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(rateLimit(rate.Limit(cfg.requestsPerSecond), cfg.burst))

	r.Post("/", func(w http.ResponseWriter, req *http.Request) {
		body, ok := decodePublishRequest(w, req)
		if !ok {
			return
		}
		record, err := service.Publish(req.Context(), body.EncryptedDidDocument)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"did": record.Did, "version": record.Version})
	})

	r.Put("/", func(w http.ResponseWriter, req *http.Request) {
		body, ok := decodePublishRequest(w, req)
		if !ok {
			return
		}
		record, err := service.Update(req.Context(), body.EncryptedDidDocument)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"did": record.Did, "version": record.Version})
	})

	r.Get("/.well-known/did.json", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, service.OwnDocument())
	})

	r.Get("/{did}/did.json", func(w http.ResponseWriter, req *http.Request) {
		did, err := url.PathUnescape(chi.URLParam(req, "did"))
		if err != nil {
			http.Error(w, "invalid did", http.StatusBadRequest)
			return
		}
		doc, err := service.Find(req.Context(), did)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	})

	return r
}

type routerConfig struct {
	requestsPerSecond float64
	burst             int
}

// RouterOption configures the HTTP router.
type RouterOption func(*routerConfig)

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(requestsPerSecond float64, burst int) RouterOption {
	return func(cfg *routerConfig) {
		cfg.requestsPerSecond = requestsPerSecond
		cfg.burst = burst
	}
}

func rateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func decodePublishRequest(w http.ResponseWriter, req *http.Request) (publishRequest, bool) {
	var body publishRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.EncryptedDidDocument == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return publishRequest{}, false
	}
	return body, true
}

func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, ErrUnknownDid):
		http.Error(w, "did not found", http.StatusNotFound)
	case errors.Is(err, ErrBadSubmission), errors.Is(err, ErrDocumentExists):
		http.Error(w, "invalid submission", http.StatusBadRequest)
	default:
		log.Error().Err(err).Msg("registry request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
