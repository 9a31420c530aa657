package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/studentnest/nest-backend/api/responses"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/logger"
	pkgredis "github.com/studentnest/nest-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255

	// reservationTTL bounds how long a crashed handler blocks its key.
	reservationTTL = 2 * time.Minute
	defaultReplay  = 24 * time.Hour
	statusReplay   = 7 * 24 * time.Hour
)

// IdempotencyStore adds an overwrite to the reservation primitives so a
// reserved key can be finalised with the captured response.
type IdempotencyStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type idempotencyRule struct {
	method   string
	match    func(route string) bool
	ttl      time.Duration
	optional bool
}

// Verify and the gateway webhook dedupe on gateway ids and are not listed.
var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, match: exactRoute("/api/v1/payments/create-order"), ttl: defaultReplay},
	{method: http.MethodPost, match: exactRoute("/api/v1/bookings"), ttl: defaultReplay},
	{method: http.MethodPost, match: exactRoute("/api/v1/auth/register"), ttl: defaultReplay, optional: true},
	{method: http.MethodPut, match: wrappedRoute("/api/v1/bookings/", "/status"), ttl: statusReplay, optional: true},
}

// storedResponse is what lands in redis under an idempotency key. While the
// first request is running only RequestHash and Pending are set.
type storedResponse struct {
	RequestHash string `json:"request_hash"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// the routes listed in idempotencyRules. The key is reserved before the
// handler runs, so a concurrent duplicate gets 409 instead of a second
// gateway order. Responses with a 5xx status release the key for retry.
func Idempotency(store IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "" && rule.optional:
				next.ServeHTTP(w, r)
				return
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			requestHash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(callerScope(r), clientKey)

			reserved, err := reserve(ctx, store, key, requestHash)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !reserved {
				replay(ctx, store, logg, w, key, requestHash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// Detach from the request so a client disconnect cannot strand the reservation.
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			status := capture.code()
			if status >= http.StatusInternalServerError {
				if err := store.Del(saveCtx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			payload, _ := json.Marshal(storedResponse{
				RequestHash: requestHash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err := store.Set(saveCtx, key, string(payload), rule.ttl); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotent response", err)
			}
		})
	}
}

func reserve(ctx context.Context, store IdempotencyStore, key, requestHash string) (bool, error) {
	marker, _ := json.Marshal(storedResponse{RequestHash: requestHash, Pending: true})
	ok, err := store.SetNX(ctx, key, string(marker), reservationTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	return ok, nil
}

func replay(ctx context.Context, store IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, requestHash string) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		// Reservation expired between SetNX and Get.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.RequestHash != requestHash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key reused with a different request body"))
	case stored.Pending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

// callerScope keeps keys from different users, and from different
// endpoints of the same user, from colliding.
func callerScope(r *http.Request) string {
	caller := "anonymous"
	if p, ok := PrincipalFromContext(r.Context()); ok {
		caller = p.UserID.String()
	}
	return caller + "|" + r.Method + "|" + r.URL.Path
}

// routePattern prefers the chi pattern but falls back to the raw path while
// a parent router is still resolving (the pattern then ends in a wildcard).
func routePattern(r *http.Request) string {
	route := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			route = pattern
		}
	}
	if len(route) > 1 {
		route = strings.TrimSuffix(route, "/")
	}
	return route
}

func matchRule(method, route string) (idempotencyRule, bool) {
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.match(route) {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

func exactRoute(want string) func(string) bool {
	return func(route string) bool { return route == want }
}

func wrappedRoute(prefix, suffix string) func(string) bool {
	return func(route string) bool {
		return len(route) > len(prefix)+len(suffix) && strings.HasPrefix(route, prefix) && strings.HasSuffix(route, suffix)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) code() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
