package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/edgekv"
	"github.com/unkn0wn-root/edgekv/origin"
	"github.com/unkn0wn-root/edgekv/origin/memory"
	"github.com/unkn0wn-root/edgekv/provider/bigcache"
	"github.com/unkn0wn-root/edgekv/scheduler"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

type brokenOrigin struct{ *memory.Store }

var errBroken = errors.New("origin down")

func (brokenOrigin) Get(context.Context, string, origin.GetOptions) (io.ReadCloser, error) {
	return nil, errBroken
}

func (brokenOrigin) GetWithMetadata(context.Context, string, origin.GetOptions) (*origin.Object, error) {
	return nil, errBroken
}

func newKV(t *testing.T, store origin.Store, sched scheduler.Scheduler) *edgekv.KV {
	t.Helper()
	edge, err := bigcache.New(bigcache.Config{LifeWindow: time.Hour, MaxEntriesInWindow: 1024, MaxEntrySize: 256})
	require.NoError(t, err)
	kv, err := edgekv.New(edgekv.Options{
		Origin:    store,
		Edge:      edge,
		Scheduler: sched,
		Rand:      fixedRand(0.99),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close(context.Background()) })
	return kv
}

func newTestApp(t *testing.T, kv *edgekv.KV) *fiber.App {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	app, err := NewApp(AppOptions{Logger: logger, KV: kv})
	require.NoError(t, err)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, contentType, body string, headers ...string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func errorCode(t *testing.T, body string) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	code, _ := m["error"].(string)
	return code
}

func TestNewAppRequiresDependencies(t *testing.T) {
	_, err := NewApp(AppOptions{KV: &edgekv.KV{}})
	assert.Error(t, err)
	_, err = NewApp(AppOptions{Logger: logrus.New()})
	assert.Error(t, err)
}

func TestHealthAndRequestID(t *testing.T) {
	app := newTestApp(t, newKV(t, memory.New(0), scheduler.Inline{}))

	resp, body := do(t, app, "GET", "/-/health", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"ok"`)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	resp, _ = do(t, app, "GET", "/-/health", "", "", HeaderRequestID, "abc")
	assert.Equal(t, "abc", resp.Header.Get(HeaderRequestID))
}

func TestTextRoundTrip(t *testing.T) {
	app := newTestApp(t, newKV(t, memory.New(0), scheduler.Inline{}))

	resp, body := do(t, app, "GET", "/kv/greeting", "", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, body))

	resp, _ = do(t, app, "PUT", "/kv/greeting", "text/plain", "hello")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = do(t, app, "GET", "/kv/greeting", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", body)
	assert.Equal(t, "HIT", resp.Header.Get(HeaderCacheStatus))
}

func TestKeyWithSlashes(t *testing.T) {
	app := newTestApp(t, newKV(t, memory.New(0), scheduler.Inline{}))

	resp, _ := do(t, app, "POST", "/kv/a/b/c", "text/plain", "nested")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	_, body := do(t, app, "GET", "/kv/a/b/c", "", "")
	assert.Equal(t, "nested", body)
}

func TestStructuredWithMetadata(t *testing.T) {
	app := newTestApp(t, newKV(t, memory.New(0), scheduler.Inline{}))

	resp, _ := do(t, app, "PUT", "/kv/user:1", "application/json", `{"name":"ada","age":36}`,
		HeaderMetadata, `{"owner":"ops"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := do(t, app, "GET", "/kv/user:1?type=json", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"ada","age":36}`, body)
	assert.JSONEq(t, `{"owner":"ops"}`, resp.Header.Get(HeaderMetadata))

	_, body = do(t, app, "GET", "/kv/user:1?type=json&metadata=1", "", "")
	assert.JSONEq(t, `{"value":{"name":"ada","age":36},"metadata":{"owner":"ops"}}`, body)
}

func TestPutEnvelopeBody(t *testing.T) {
	app := newTestApp(t, newKV(t, memory.New(0), scheduler.Inline{}))

	resp, _ := do(t, app, "PUT", "/kv/k?metadata=1", "application/json", `{"value":"plain","metadata":{"v":2}}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	_, body := do(t, app, "GET", "/kv/k?metadata=1", "", "")
	assert.JSONEq(t, `{"value":"plain","metadata":{"v":2}}`, body)
}

func TestBinaryRoundTrip(t *testing.T) {
	app := newTestApp(t, newKV(t, memory.New(0), scheduler.Inline{}))

	payload := string([]byte{0, 1, 2, 0xff})
	resp, _ := do(t, app, "PUT", "/kv/blob", "application/octet-stream", payload)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	for _, typ := range []string{"binary", "stream"} {
		resp, body := do(t, app, "GET", "/kv/blob?type="+typ, "", "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, payload, body)
		assert.Equal(t, fiber.MIMEOctetStream, resp.Header.Get("Content-Type"))
	}
}

func TestDelete(t *testing.T) {
	app := newTestApp(t, newKV(t, memory.New(0), scheduler.Inline{}))

	do(t, app, "PUT", "/kv/gone", "text/plain", "x")
	resp, _ := do(t, app, "DELETE", "/kv/gone", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = do(t, app, "GET", "/kv/gone", "", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, app, "DELETE", "/kv/gone", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestListPagesAreCached(t *testing.T) {
	app := newTestApp(t, newKV(t, memory.New(0), scheduler.Inline{}))
	for _, k := range []string{"user:1", "user:2", "user:3", "other"} {
		do(t, app, "PUT", "/kv/"+k, "text/plain", "v")
	}

	resp, body := do(t, app, "GET", "/kv?prefix=user:&limit=2", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get(HeaderCacheStatus))

	var page listJSON
	require.NoError(t, json.Unmarshal([]byte(body), &page))
	require.Len(t, page.Keys, 2)
	assert.Equal(t, "user:1", page.Keys[0].Name)
	assert.False(t, page.ListComplete)
	assert.NotEmpty(t, page.Cursor)

	resp, _ = do(t, app, "GET", "/kv?prefix=user:&limit=2", "", "")
	assert.Equal(t, "HIT", resp.Header.Get(HeaderCacheStatus))

	resp, body = do(t, app, "GET", "/kv?prefix=user:&limit=2&cursor="+page.Cursor, "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var next listJSON
	require.NoError(t, json.Unmarshal([]byte(body), &next))
	require.Len(t, next.Keys, 1)
	assert.Equal(t, "user:3", next.Keys[0].Name)
	assert.True(t, next.ListComplete)
}

func TestStoredKeysSurviveLaterRequests(t *testing.T) {
	store := memory.New(0)
	app := newTestApp(t, newKV(t, store, nil))
	names := []string{"user:1", "user:2", "user:3", "other"}
	for _, k := range names {
		resp, _ := do(t, app, "PUT", "/kv/"+k+"?prefix=ignored", "text/plain", "v-"+k)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	res, err := store.List(context.Background(), origin.ListOptions{})
	require.NoError(t, err)
	got := make([]string, 0, len(res.Keys))
	for _, k := range res.Keys {
		got = append(got, k.Name)
	}
	assert.Equal(t, []string{"other", "user:1", "user:2", "user:3"}, got)

	for _, k := range names {
		_, body := do(t, app, "GET", "/kv/"+k, "", "")
		assert.Equal(t, "v-"+k, body)
	}
}

func TestBadRequests(t *testing.T) {
	app := newTestApp(t, newKV(t, memory.New(0), scheduler.Inline{}))

	cases := []struct {
		method, target, ct, body string
		headers                  []string
		code                     string
	}{
		{"GET", "/kv?limit=abc", "", "", nil, "invalid_list_query"},
		{"GET", "/kv?limit=5000", "", "", nil, "invalid_list_query"},
		{"GET", "/kv?cursor=%21%21", "", "", nil, "invalid_list_query"},
		{"GET", "/kv/x?type=xml", "", "", nil, "invalid_representation"},
		{"PUT", "/kv/x?expiration_ttl=soon", "text/plain", "v", nil, "invalid_request"},
		{"PUT", "/kv/x?expiration=-1", "text/plain", "v", nil, "invalid_request"},
		{"PUT", "/kv/x", "text/plain", "v", []string{HeaderMetadata, "{nope"}, "invalid_request"},
		{"PUT", "/kv/x", "application/json", "{nope", nil, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			resp, body := do(t, app, tc.method, tc.target, tc.ct, tc.body, tc.headers...)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, body)
			assert.Equal(t, tc.code, errorCode(t, body))
		})
	}
}

func TestOriginFailureIsBadGateway(t *testing.T) {
	app := newTestApp(t, newKV(t, brokenOrigin{memory.New(0)}, scheduler.Inline{}))

	resp, body := do(t, app, "GET", "/kv/anything", "", "")
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "origin_unavailable", errorCode(t, body))
}

func TestWaitHoldsResponseForEdgeWrite(t *testing.T) {
	// nil scheduler: the KV owns a worker pool, so only wait=1 makes the
	// edge write visible before the response.
	app := newTestApp(t, newKV(t, memory.New(0), nil))

	resp, _ := do(t, app, "PUT", "/kv/w?wait=1", "text/plain", "waited")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := do(t, app, "GET", "/kv/w", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "waited", body)
	assert.Equal(t, "HIT", resp.Header.Get(HeaderCacheStatus))
}

func TestExpirationTTLAccepted(t *testing.T) {
	store := memory.New(0)
	app := newTestApp(t, newKV(t, store, scheduler.Inline{}))

	resp, _ := do(t, app, "PUT", "/kv/temp?expiration_ttl=60", "text/plain", "soon gone")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	res, err := store.List(context.Background(), origin.ListOptions{Prefix: "temp"})
	require.NoError(t, err)
	require.Len(t, res.Keys, 1)
	assert.Greater(t, res.Keys[0].Expiration, time.Now().Unix())
}
