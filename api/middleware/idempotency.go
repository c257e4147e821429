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

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-fulfillment/pkg/redis"
)

// Retention windows for stored responses. Reservations and transitions keep
// theirs longer because clients retry those across checkout sessions.
const (
	IdempotencyWindow         = 24 * time.Hour
	IdempotencyExtendedWindow = 7 * 24 * time.Hour
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replayed"
	retryAfterHeader  = "Retry-After"
	maxIdempotentBody = 1 << 20
	maxIdempotencyKey = 255
	statePending      = "pending"
	stateComplete     = "complete"
)

type storedResponse struct {
	State       string `json:"state"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotent makes a mutating route safe to retry. The first request with a
// given Idempotency-Key runs; later ones with the same key and body receive the
// stored response. The key is claimed before the handler runs so a concurrent
// duplicate is rejected. A response the client should retry frees the key,
// and so does a handler panic.
// A nil store disables the guard.
func Idempotent(store pkgredis.IdempotencyStore, logg *logger.Logger, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		g := idempotencyGuard{store: store, logg: logg, window: window}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

type idempotencyGuard struct {
	store  pkgredis.IdempotencyStore
	logg   *logger.Logger
	window time.Duration
}

func (g idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	switch {
	case clientKey == "":
		g.fail(ctx, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
		return
	case len(clientKey) > maxIdempotencyKey:
		g.fail(ctx, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
	if err != nil {
		g.fail(ctx, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
		return
	}
	if len(body) > maxIdempotentBody {
		g.fail(ctx, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	fingerprint := fingerprintRequest(r.Method, r.URL.Path, body)
	key := g.store.IdempotencyKey(actorScope(ctx), clientKey)

	claimed, err := g.claim(ctx, key, fingerprint)
	if err != nil {
		g.fail(ctx, w, err)
		return
	}
	if !claimed {
		g.replay(ctx, w, key, fingerprint)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			g.release(ctx, key)
			panic(rec)
		}
	}()
	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)
	g.settle(ctx, key, fingerprint, capture)
}

func (g idempotencyGuard) claim(ctx context.Context, key, fingerprint string) (bool, error) {
	pending, err := json.Marshal(storedResponse{State: statePending, Fingerprint: fingerprint})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim")
	}
	ok, err := g.store.SetNX(ctx, key, string(pending), g.window)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	return ok, nil
}

func (g idempotencyGuard) replay(ctx context.Context, w http.ResponseWriter, key, fingerprint string) {
	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the holder released it between our SETNX and GET
		g.fail(ctx, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
		return
	}
	if err != nil {
		g.fail(ctx, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		g.fail(ctx, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}

	switch {
	case stored.Fingerprint != fingerprint:
		g.fail(ctx, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key reused with different request"))
	case stored.State != stateComplete:
		g.fail(ctx, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set(replayHeader, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

// settle stores the handler's response, or drops the claim when the client is
// expected to try again: server errors and anything sent with Retry-After.
func (g idempotencyGuard) settle(ctx context.Context, key, fingerprint string, capture *responseCapture) {
	status := capture.statusOrOK()
	if status >= http.StatusInternalServerError || capture.Header().Get(retryAfterHeader) != "" {
		g.release(ctx, key)
		return
	}
	payload, err := json.Marshal(storedResponse{
		State:       stateComplete,
		Fingerprint: fingerprint,
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
	})
	if err != nil {
		g.logError(ctx, "encode idempotency record", err)
		return
	}
	if err := g.store.Set(ctx, key, string(payload), g.window); err != nil {
		g.logError(ctx, "persist idempotency record", err)
	}
}

func (g idempotencyGuard) release(ctx context.Context, key string) {
	if err := g.store.Del(ctx, key); err != nil {
		g.logError(ctx, "release idempotency key", err)
	}
}

func (g idempotencyGuard) fail(ctx context.Context, w http.ResponseWriter, err error) {
	responses.WriteError(ctx, g.logg, w, err)
}

func (g idempotencyGuard) logError(ctx context.Context, msg string, err error) {
	if g.logg != nil {
		g.logg.Error(ctx, msg, err)
	}
}

// actorScope keeps keys from different callers apart.
func actorScope(ctx context.Context) string {
	return ActorIDFromContext(ctx) + "|" + StoreIDFromContext(ctx)
}

func fingerprintRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
