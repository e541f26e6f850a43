package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"place-explorer/server/internal/auth"
	"place-explorer/server/internal/config"
	"place-explorer/server/internal/gateway"
	"place-explorer/server/internal/model"
	"place-explorer/server/internal/places"
	"place-explorer/server/internal/selection"
	"place-explorer/server/internal/session"
	"place-explorer/server/internal/timeline"
)

func fakeGateway() places.Gateway {
	return places.GatewayFunc(func(_ context.Context, ref model.PlaceReference, _ model.FieldSet) (model.PlaceDetails, error) {
		switch id := ref.ProviderID(); id {
		case "missing":
			return model.PlaceDetails{}, places.ErrNotFound
		case "broken":
			return model.PlaceDetails{}, &places.ProviderError{Status: "OVER_QUERY_LIMIT"}
		default:
			return model.PlaceDetails{
				PlaceID:     id,
				Name:        "Place " + id,
				Address:     "Addr " + id,
				Coordinates: model.Coordinates{Lat: 4.6, Lng: -74.1},
				OpenNow:     model.OpenUnknown,
				Schedule:    []string{},
			}, nil
		}
	})
}

type testServer struct {
	handler http.Handler
	screens *session.Manager
}

func newTestServer(t *testing.T, authSvc *auth.Service) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	screens := session.NewManager(session.NewInMemoryStore(), fakeGateway(), timeline.NewInMemoryStore(),
		session.OptionsFromConfig(cfg), zerolog.Nop())
	t.Cleanup(func() { screens.CloseAll(context.Background()) })
	return &testServer{
		handler: NewServer(cfg, screens, authSvc, zerolog.Nop()).Routes(),
		screens: screens,
	}
}

func (ts *testServer) do(t *testing.T, method, target string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func (ts *testServer) createScreen(t *testing.T) createScreenResponse {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/screens", nil, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp createScreenResponse
	decode(t, w, &resp)
	return resp
}

func (ts *testServer) waitSelection(t *testing.T, id string, want selection.Status) selection.Selection {
	t.Helper()
	var sel selection.Selection
	require.Eventually(t, func() bool {
		w := ts.do(t, http.MethodGet, "/api/screens/"+id+"/selection", nil, nil)
		if w.Code != http.StatusOK {
			return false
		}
		sel = selection.Selection{}
		_ = json.Unmarshal(w.Body.Bytes(), &sel)
		return sel.Status == want
	}, 2*time.Second, 10*time.Millisecond)
	return sel
}

func TestHealthzAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "placeexplorer_active_screens")
}

func TestCreateScreen(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.createScreen(t)

	assert.NotEmpty(t, resp.ScreenID)
	assert.Equal(t, model.Coordinates{Lat: 4.711, Lng: -74.072}, resp.Viewport.Center)
	assert.Equal(t, 12, resp.Viewport.Zoom)
	assert.Equal(t, 5, resp.HistoryCapacity)
}

func TestEventsResolveSelectionAndHistory(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createScreen(t).ScreenID

	for i, placeID := range []string{"a", "b", "a"} {
		w := ts.do(t, http.MethodPost, "/api/screens/"+id+"/events",
			gateway.ClientMessage{Type: gateway.EventTypeSuggestionChosen, PlaceID: placeID}, nil)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		var ack struct {
			Seq int64 `json:"seq"`
		}
		decode(t, w, &ack)
		assert.Equal(t, int64(i+1), ack.Seq)

		want := placeID
		require.Eventually(t, func() bool {
			w := ts.do(t, http.MethodGet, "/api/screens/"+id+"/selection", nil, nil)
			var sel selection.Selection
			_ = json.Unmarshal(w.Body.Bytes(), &sel)
			return sel.Status == selection.StatusResolved && sel.Place != nil && sel.Place.PlaceID == want
		}, 2*time.Second, 10*time.Millisecond)
	}

	w := ts.do(t, http.MethodGet, "/api/screens/"+id+"/history?visible=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var raw struct {
		Entries []struct {
			Place    model.PlaceDetails `json:"place"`
			Position int                `json:"position"`
		} `json:"entries"`
		Capacity int  `json:"capacity"`
		Overflow *int `json:"overflow"`
	}
	decode(t, w, &raw)
	require.Len(t, raw.Entries, 2)
	assert.Equal(t, "Place a", raw.Entries[0].Place.Name)
	assert.Equal(t, "Place b", raw.Entries[1].Place.Name)
	assert.Equal(t, 5, raw.Capacity)
	require.NotNil(t, raw.Overflow)
	assert.Equal(t, 1, *raw.Overflow)

	w = ts.do(t, http.MethodGet, "/api/screens/"+id+"/timeline", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tl struct {
		Events []model.ScreenEvent `json:"events"`
	}
	decode(t, w, &tl)
	assert.Len(t, tl.Events, 3)
}

func TestEventsFailureKeepsPlace(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createScreen(t).ScreenID

	ts.do(t, http.MethodPost, "/api/screens/"+id+"/events",
		gateway.ClientMessage{Type: gateway.EventTypeSuggestionChosen, PlaceID: "a"}, nil)
	ts.waitSelection(t, id, selection.StatusResolved)

	ts.do(t, http.MethodPost, "/api/screens/"+id+"/events",
		gateway.ClientMessage{Type: gateway.EventTypeSuggestionChosen, PlaceID: "broken"}, nil)
	sel := ts.waitSelection(t, id, selection.StatusFailed)

	assert.Equal(t, "provider_error", sel.Reason)
	require.NotNil(t, sel.Place)
	assert.Equal(t, "Place a", sel.Place.Name)
}

func TestEventsRejectsBadInput(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createScreen(t).ScreenID

	w := ts.do(t, http.MethodPost, "/api/screens/"+id+"/events",
		gateway.ClientMessage{Type: gateway.EventTypeSuggestionChosen}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/screens/"+id+"/events", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = ts.do(t, http.MethodPost, "/api/screens/nope/events",
		gateway.ClientMessage{Type: gateway.EventTypeSuggestionChosen, PlaceID: "a"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"screen not found"}`, w.Body.String())
}

func TestPreview(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createScreen(t).ScreenID

	cases := []struct {
		query string
		code  int
	}{
		{query: "?place_id=a", code: http.StatusOK},
		{query: "", code: http.StatusBadRequest},
		{query: "?place_id=missing", code: http.StatusNotFound},
		{query: "?place_id=broken", code: http.StatusBadGateway},
	}
	for _, tc := range cases {
		w := ts.do(t, http.MethodGet, "/api/screens/"+id+"/preview"+tc.query, nil, nil)
		assert.Equal(t, tc.code, w.Code, tc.query)
	}

	// preview leaves the selection alone
	w := ts.do(t, http.MethodGet, "/api/screens/"+id+"/selection", nil, nil)
	var sel selection.Selection
	decode(t, w, &sel)
	assert.Equal(t, selection.StatusIdle, sel.Status)
}

func TestHistoryRejectsBadVisible(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createScreen(t).ScreenID

	w := ts.do(t, http.MethodGet, "/api/screens/"+id+"/history?visible=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteScreen(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createScreen(t).ScreenID

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/screens/"+id, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/screens/"+id, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/screens/"+id+"/selection", nil, nil).Code)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodOptions, "/api/screens", nil, http.Header{"Origin": {"http://localhost:5173"}})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	w = ts.do(t, http.MethodGet, "/healthz", nil, http.Header{"Origin": {"http://evil.example"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthFlow(t *testing.T) {
	svc := auth.NewService(auth.Config{SigningKey: "k", BcryptCost: bcrypt.MinCost})
	ts := newTestServer(t, svc)

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/screens", nil, nil).Code)

	w := ts.do(t, http.MethodPost, "/auth/register", registerRequest{Email: "ana@example.com", Password: "pw", Name: "Ana"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = ts.do(t, http.MethodPost, "/auth/register", registerRequest{Email: "ana@example.com", Password: "pw"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "ana@example.com", Password: "bad"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "ana@example.com", Password: "pw"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string    `json:"token"`
		User  auth.User `json:"user"`
	}
	decode(t, w, &login)
	require.NotEmpty(t, login.Token)
	bearer := http.Header{"Authorization": {"Bearer " + login.Token}}

	w = ts.do(t, http.MethodGet, "/auth/verify", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ana@example.com")

	assert.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/screens", nil, bearer).Code)
	assert.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/screens?token="+login.Token, nil, nil).Code)
}

func TestAuthRoutesAbsentWhenDisabled(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/auth/login", loginRequest{}, nil).Code)
}

func TestStreamEndToEnd(t *testing.T) {
	ts := newTestServer(t, nil)
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)
	id := ts.createScreen(t).ScreenID

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/screens/"+id+"/stream", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	read := func() gateway.ServerMessage {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg gateway.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, gateway.EventTypeSelection, first.Type)
	assert.Equal(t, selection.StatusIdle, first.Selection.Status)

	require.NoError(t, conn.WriteJSON(gateway.ClientMessage{Type: gateway.EventTypeSuggestionChosen, EventID: "e1", PlaceID: "a"}))
	for {
		msg := read()
		if msg.Type == gateway.EventTypeViewportMarker {
			assert.Equal(t, model.Coordinates{Lat: 4.6, Lng: -74.1}, *msg.At)
			break
		}
	}

	dial := func() int {
		_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/screens/nope/stream", nil)
		require.Error(t, err)
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusNotFound, dial())
}
