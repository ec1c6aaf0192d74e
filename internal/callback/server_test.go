package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/restreamctl/restreamer/internal/model"
	"github.com/restreamctl/restreamer/internal/state"
)

func newTestServer(t *testing.T) (*Server, *state.Store) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store, err := state.Open(ctx, filepath.Join(t.TempDir(), "state.json"), nil)
	if err != nil {
		t.Fatalf("state.Open() error = %v", err)
	}
	return NewServer(ServerConfig{Store: store}), store
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", raw, err)
	}
	return u
}

func post(t *testing.T, h http.Handler, body Request) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestOnConnectSucceedsForEnabledInput(t *testing.T) {
	server, store := newTestServer(t)
	store.AddPushInput("studio", nil)
	restreamID := store.Restreams()[0].ID
	store.EnableInput(restreamID)

	w := post(t, server.Handler(), Request{Action: actionConnect, App: "studio"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", w.Code, http.StatusOK, w.Body.String())
	}
	if w.Body.String() != "0" {
		t.Fatalf("body = %q, want \"0\"", w.Body.String())
	}
}

func TestOnConnectNotFoundForDisabledInput(t *testing.T) {
	server, store := newTestServer(t)
	store.AddPushInput("studio", nil) // left disabled

	w := post(t, server.Handler(), Request{Action: actionConnect, App: "studio"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestOnPublishSetsOnlineAndPublisherID(t *testing.T) {
	server, store := newTestServer(t)
	store.AddPushInput("studio", nil)
	restreamID := store.Restreams()[0].ID
	store.EnableInput(restreamID)

	w := post(t, server.Handler(), Request{
		Action: actionPublish, App: "studio", Stream: "in", ClientID: 1, IP: "203.0.113.5",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", w.Code, http.StatusOK, w.Body.String())
	}

	rs := store.Restreams()[0]
	if rs.BrokerPublisherID != "1" {
		t.Fatalf("broker_publisher_id = %q, want 1", rs.BrokerPublisherID)
	}
	if rs.Input.Status() != model.Online {
		t.Fatalf("input status = %v, want Online", rs.Input.Status())
	}
}

func TestOnPublishWrongStreamIsNotFound(t *testing.T) {
	server, store := newTestServer(t)
	store.AddPushInput("studio", nil)
	restreamID := store.Restreams()[0].ID
	store.EnableInput(restreamID)

	w := post(t, server.Handler(), Request{Action: actionPublish, App: "studio", Stream: "out", ClientID: 1, IP: "203.0.113.5"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestOnPublishPullFromNonLoopbackIsForbidden(t *testing.T) {
	server, store := newTestServer(t)
	store.AddPullInput(mustURL(t, "rtmp://upstream/x"), nil)
	restreamID := store.Restreams()[0].ID
	store.EnableInput(restreamID)
	app := store.Restreams()[0].Input.BrokerURL().Path
	app = app[len("/") : len(app)-len("/in")]

	w := post(t, server.Handler(), Request{
		Action: actionPublish, App: app, Stream: "in", ClientID: 1, IP: "203.0.113.5",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestOnPublishPullFromLoopbackSucceeds(t *testing.T) {
	server, store := newTestServer(t)
	store.AddPullInput(mustURL(t, "rtmp://upstream/x"), nil)
	restreamID := store.Restreams()[0].ID
	store.EnableInput(restreamID)
	app := store.Restreams()[0].Input.BrokerURL().Path
	app = app[len("/") : len(app)-len("/in")]

	w := post(t, server.Handler(), Request{
		Action: actionPublish, App: app, Stream: "in", ClientID: 1, IP: "127.0.0.1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestOnUnpublishClearsPublisherAndGoesOffline(t *testing.T) {
	server, store := newTestServer(t)
	store.AddPushInput("studio", nil)
	restreamID := store.Restreams()[0].ID
	store.EnableInput(restreamID)
	post(t, server.Handler(), Request{Action: actionPublish, App: "studio", Stream: "in", ClientID: 1, IP: "127.0.0.1"})

	w := post(t, server.Handler(), Request{Action: actionUnpublish, App: "studio"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	rs := store.Restreams()[0]
	if rs.BrokerPublisherID != "" {
		t.Fatal("on_unpublish must clear broker_publisher_id")
	}
	if rs.Input.Status() != model.Offline {
		t.Fatal("on_unpublish must set status back to Offline")
	}
}

func TestUnknownActionIsBadRequest(t *testing.T) {
	server, _ := newTestServer(t)
	w := post(t, server.Handler(), Request{Action: "on_teleport", App: "studio"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
