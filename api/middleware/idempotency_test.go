package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func postWithKey(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestIdempotentRequiresKey(t *testing.T) {
	called := false
	guarded := Idempotent(newFakeStore(), nil, IdempotencyWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	resp := httptest.NewRecorder()
	guarded.ServeHTTP(resp, postWithKey("/api/v1/reservations", "", `{}`))
	if resp.Code != http.StatusBadRequest || called {
		t.Fatalf("expected 400 without running handler, got %d called=%v", resp.Code, called)
	}

	resp = httptest.NewRecorder()
	guarded.ServeHTTP(resp, postWithKey("/api/v1/reservations", strings.Repeat("k", maxIdempotencyKey+1), `{}`))
	if resp.Code != http.StatusBadRequest || called {
		t.Fatalf("expected 400 for oversized key, got %d", resp.Code)
	}
}

func TestIdempotentWithoutStoreIsPassthrough(t *testing.T) {
	calls := 0
	guarded := Idempotent(nil, nil, IdempotencyWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	guarded.ServeHTTP(httptest.NewRecorder(), postWithKey("/x", "", ""))
	if calls != 1 {
		t.Fatalf("expected handler to run, calls=%d", calls)
	}
}

func TestIdempotentReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	guarded := Idempotent(store, nil, IdempotencyExtendedWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"reserved":2}}`))
	}))

	first := httptest.NewRecorder()
	guarded.ServeHTTP(first, postWithKey("/api/v1/reservations", "abc", `{"orderId":"o-1"}`))
	second := httptest.NewRecorder()
	guarded.ServeHTTP(second, postWithKey("/api/v1/reservations", "abc", `{"orderId":"o-1"}`))

	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body %q differs from %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("Content-Type") != "application/json" || second.Header().Get(replayHeader) != "true" {
		t.Fatalf("unexpected replay headers: %v", second.Header())
	}
	if first.Header().Get(replayHeader) != "" {
		t.Fatal("first response must not be marked as a replay")
	}
}

func TestIdempotentRejectsChangedRequest(t *testing.T) {
	store := newFakeStore()
	guarded := Idempotent(store, nil, IdempotencyWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	guarded.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/orders/1/reservations/release", "xyz", `{"reason":"cancel"}`))

	cases := map[string]*http.Request{
		"different body": postWithKey("/api/v1/orders/1/reservations/release", "xyz", `{"reason":"other"}`),
		"different path": postWithKey("/api/v1/orders/2/reservations/release", "xyz", `{"reason":"cancel"}`),
	}
	for name, req := range cases {
		resp := httptest.NewRecorder()
		guarded.ServeHTTP(resp, req)
		if resp.Code != http.StatusConflict {
			t.Fatalf("%s: expected 409 got %d", name, resp.Code)
		}
		if code := errorCode(t, resp); code != string(pkgerrors.CodeConflict) {
			t.Fatalf("%s: expected %s got %s", name, pkgerrors.CodeConflict, code)
		}
	}
}

func TestIdempotentScopesKeysPerActor(t *testing.T) {
	store := newFakeStore()
	calls := 0
	guarded := Idempotent(store, nil, IdempotencyWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	for _, actor := range []string{"actor-a", "actor-b"} {
		req := postWithKey("/api/v1/reservations", "shared", `{}`)
		req = req.WithContext(WithActor(req.Context(), actor, "vendor"))
		guarded.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("same key from two actors must both run, calls=%d", calls)
	}
}

func TestIdempotentReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	guarded := Idempotent(store, nil, IdempotencyExtendedWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		guarded.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/orders/1/transitions", "retry-me", `{"toStatus":"confirmed"}`))
	}
	if calls != 2 {
		t.Fatalf("expected retry after 5xx to reach the handler, calls=%d", calls)
	}
	if len(store.data) != 1 {
		t.Fatalf("expected the successful response to be stored, got %d keys", len(store.data))
	}
}

func TestIdempotentReleasesKeyOnRetryableConflict(t *testing.T) {
	store := newFakeStore()
	calls := 0
	guarded := Idempotent(store, nil, IdempotencyExtendedWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "order changed"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	guarded.ServeHTTP(first, postWithKey("/api/v1/orders/1/transitions", "race", `{"toStatus":"confirmed"}`))
	if first.Code != http.StatusConflict || first.Header().Get(retryAfterHeader) == "" {
		t.Fatalf("expected 409 with Retry-After, got %d %q", first.Code, first.Header().Get(retryAfterHeader))
	}

	second := httptest.NewRecorder()
	guarded.ServeHTTP(second, postWithKey("/api/v1/orders/1/transitions", "race", `{"toStatus":"confirmed"}`))
	if calls != 2 {
		t.Fatalf("expected the retry to reach the handler, calls=%d", calls)
	}
	if second.Code != http.StatusOK || second.Header().Get(replayHeader) != "" {
		t.Fatalf("expected a fresh 200, got %d replayed=%q", second.Code, second.Header().Get(replayHeader))
	}
}

func TestIdempotentStoresNonRetryableConflict(t *testing.T) {
	store := newFakeStore()
	calls := 0
	guarded := Idempotent(store, nil, IdempotencyWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeConflict, "already held"))
	}))

	for i := 0; i < 2; i++ {
		guarded.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/reservations", "held", `{"a":1}`))
	}
	if calls != 1 {
		t.Fatalf("expected the stored conflict to be replayed, calls=%d", calls)
	}
}

func TestIdempotentReleasesKeyWhenHandlerPanics(t *testing.T) {
	store := newFakeStore()
	calls := 0
	guarded := Recoverer(nil)(Idempotent(store, nil, IdempotencyWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	})))

	first := httptest.NewRecorder()
	guarded.ServeHTTP(first, postWithKey("/api/v1/reservations", "crash", `{"a":1}`))
	if first.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from the recovered panic, got %d", first.Code)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected the claim to be dropped, got %d keys", len(store.data))
	}

	second := httptest.NewRecorder()
	guarded.ServeHTTP(second, postWithKey("/api/v1/reservations", "crash", `{"a":1}`))
	if second.Code != http.StatusCreated {
		t.Fatalf("expected the retry to run, got %d: %s", second.Code, second.Body.String())
	}
	if calls != 2 {
		t.Fatalf("expected two handler runs, calls=%d", calls)
	}
}

func TestIdempotentRejectsInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	var nested *httptest.ResponseRecorder
	var guarded http.Handler
	guarded = Idempotent(store, nil, IdempotencyWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if nested == nil {
			nested = httptest.NewRecorder()
			guarded.ServeHTTP(nested, postWithKey("/api/v1/reservations", "busy", `{"a":1}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	resp := httptest.NewRecorder()
	guarded.ServeHTTP(resp, postWithKey("/api/v1/reservations", "busy", `{"a":1}`))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first request 201 got %d", resp.Code)
	}
	if nested.Code != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate to get 409, got %d", nested.Code)
	}
}

func TestIdempotentRejectsOversizedBody(t *testing.T) {
	guarded := Idempotent(newFakeStore(), nil, IdempotencyWindow)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	resp := httptest.NewRecorder()
	guarded.ServeHTTP(resp, postWithKey("/api/v1/reservations", "big", strings.Repeat("x", maxIdempotentBody+1)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
