// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/metrics"
	"github.com/adiadia/tracker/internal/trackertime"
	"github.com/adiadia/tracker/internal/tracking"
	"github.com/adiadia/tracker/internal/transport/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	contentTypeNDJSON = "application/x-ndjson"
	maxRequestBody    = 1 << 20
	streamFlushEvery  = 64
)

type logEventRequest struct {
	EventType *int            `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type logStateRequest struct {
	StateKey *int            `json:"state_key"`
	Value    json.RawMessage `json:"state_value"`
}

type hookFailureResponse struct {
	Error string       `json:"error"`
	Event domain.Event `json:"event"`
}

type Deps struct {
	Tracker       Tracker
	Logger        *slog.Logger
	TokenResolver TokenResolver
	HealthChecker HealthChecker
	Version       string
	Commit        string
	BuildDate     string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.Check(r.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- TRACKING (TOKEN AUTH) ----------------

	r.Group(func(r chi.Router) {
		if deps.TokenResolver != nil {
			r.Use(middleware.APITokenAuth(deps.TokenResolver, logger))
		}

		// ---------------- REGISTRY ----------------

		r.Get("/registry", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"event_types": deps.Tracker.EventTypesAvailable(),
				"state_keys":  deps.Tracker.StateKeysAvailable(),
			})
		})

		// ---------------- LOG EVENT ----------------

		r.Post("/events", func(w http.ResponseWriter, r *http.Request) {
			var req logEventRequest
			if err := decodeBody(w, r, &req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			if req.EventType == nil {
				http.Error(w, "event_type is required", http.StatusBadRequest)
				return
			}

			ev, err := deps.Tracker.LogEvent(r.Context(), *req.EventType, payloadValue(req.Payload))
			if err != nil {
				var hookErr *tracking.HookError
				if errors.As(err, &hookErr) {
					writeJSON(w, http.StatusBadGateway, hookFailureResponse{
						Error: hookErr.Err.Error(),
						Event: hookErr.Event,
					})
					return
				}
				writeTrackingError(w, logger, "log event", err)
				return
			}

			writeJSON(w, http.StatusCreated, ev)
		})

		// ---------------- LOG STATE ----------------

		r.Post("/states", func(w http.ResponseWriter, r *http.Request) {
			var req logStateRequest
			if err := decodeBody(w, r, &req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			if req.StateKey == nil {
				http.Error(w, "state_key is required", http.StatusBadRequest)
				return
			}

			st, err := deps.Tracker.LogState(r.Context(), *req.StateKey, payloadValue(req.Value))
			if err != nil {
				writeTrackingError(w, logger, "log state", err)
				return
			}

			writeJSON(w, http.StatusCreated, st)
		})

		// ---------------- EVENTS BETWEEN (NDJSON) ----------------

		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()

			from, err := timestampParam(q, "from", trackertime.Zero)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			until, err := timestampParam(q, "until", trackertime.Now())
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			users, err := intListParam(q, "user")
			if err != nil {
				http.Error(w, "invalid user filter", http.StatusBadRequest)
				return
			}
			types, err := intListParam(q, "type")
			if err != nil {
				http.Error(w, "invalid type filter", http.StatusBadRequest)
				return
			}

			userIDs := make([]domain.UserID, 0, len(users))
			for _, u := range users {
				userIDs = append(userIDs, domain.UserID(u))
			}

			flusher, _ := w.(http.Flusher)
			enc := json.NewEncoder(w)
			written := 0

			for ev, err := range deps.Tracker.EventsBetween(r.Context(), from, until, userIDs, types) {
				if err != nil {
					if written == 0 {
						writeTrackingError(w, logger, "events between", err)
						return
					}
					logger.Error("events stream aborted", "written", written, "error", err)
					return
				}

				if written == 0 {
					w.Header().Set("Content-Type", contentTypeNDJSON)
					w.WriteHeader(http.StatusOK)
				}
				if err := enc.Encode(ev); err != nil {
					logger.Warn("events stream write failed", "written", written, "error", err)
					return
				}
				written++
				if flusher != nil && written%streamFlushEvery == 0 {
					flusher.Flush()
				}
			}

			if written == 0 {
				w.Header().Set("Content-Type", contentTypeNDJSON)
				w.WriteHeader(http.StatusOK)
			}
		})

		// ---------------- STATE AT ----------------

		r.Get("/states", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()

			at, err := timestampParam(q, "at", trackertime.Now())
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			keys, err := intListParam(q, "key")
			if err != nil {
				http.Error(w, "invalid key filter", http.StatusBadRequest)
				return
			}

			snap, err := deps.Tracker.StateAt(r.Context(), at, keys)
			if err != nil {
				writeTrackingError(w, logger, "state at", err)
				return
			}

			writeJSON(w, http.StatusOK, struct {
				At     trackertime.Timestamp `json:"at"`
				States []domain.StateValue   `json:"states"`
			}{
				At:     at,
				States: snap.Rows(),
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeTrackingError maps tracking sentinels to status codes.
func writeTrackingError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTimestamp),
		errors.Is(err, domain.ErrInvalidType),
		errors.Is(err, domain.ErrInvalidKey),
		errors.Is(err, domain.ErrEncoding):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNoAuthenticatedUser):
		http.Error(w, "no authenticated user", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrDuplicateInstant):
		http.Error(w, "instant already recorded", http.StatusConflict)
	default:
		logger.Error(op+" failed", "error", err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.New("empty body")
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain exactly one JSON object")
	}
	return nil
}

// payloadValue maps an absent or null JSON value to nil.
func payloadValue(raw json.RawMessage) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.RawMessage(trimmed)
}

// timestampParam reads name as unix seconds or name_ts as a tracker
// timestamp, falling back to def when neither is present.
func timestampParam(q url.Values, name string, def trackertime.Timestamp) (trackertime.Timestamp, error) {
	if raw := strings.TrimSpace(q.Get(name + "_ts")); raw != "" {
		ts, err := trackertime.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid %s_ts", name)
		}
		return ts, nil
	}
	if raw := strings.TrimSpace(q.Get(name)); raw != "" {
		ts, err := trackertime.FromUnixString(raw)
		if err != nil {
			return "", fmt.Errorf("invalid %s", name)
		}
		return ts, nil
	}
	return def, nil
}

// intListParam accepts repeated and comma separated values.
func intListParam(q url.Values, name string) ([]int, error) {
	var out []int
	for _, raw := range q[name] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
	}
	return out, nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
