package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"place-explorer/server/internal/model"
)

const fullResult = `{
  "status": "OK",
  "result": {
    "place_id": "ChIJ-museo",
    "name": "Museo del Oro",
    "formatted_address": "Cra. 6 #15-88, Bogotá",
    "formatted_phone_number": "(601) 3432222",
    "website": "https://www.banrepcultural.org/museo-del-oro",
    "geometry": {"location": {"lat": 4.6019, "lng": -74.0721}},
    "rating": 4.8,
    "user_ratings_total": 51234,
    "opening_hours": {"open_now": false, "weekday_text": ["lunes: Cerrado", "martes: 9:00–18:00"]},
    "photos": [{"height": 800, "width": 1200, "photo_reference": "ref-1"}, {"photo_reference": "ref-2"}],
    "reviews": [{"author_name": "Ana", "rating": 5, "text": "Impresionante."}, {"text": "Bueno"}],
    "types": ["museum", "tourist_attraction"]
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *GoogleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGoogleClient(GoogleConfig{
		APIKey:   "test-key",
		BaseURL:  srv.URL,
		Language: "es",
		Timeout:  2 * time.Second,
	}, zerolog.Nop())
}

func TestGoogleClient_ResolveFullDetail(t *testing.T) {
	var gotQuery map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/details/json", r.URL.Path)
		gotQuery = map[string]string{
			"place_id": r.URL.Query().Get("place_id"),
			"fields":   r.URL.Query().Get("fields"),
			"key":      r.URL.Query().Get("key"),
			"language": r.URL.Query().Get("language"),
		}
		_, _ = w.Write([]byte(fullResult))
	})

	d, err := client.Resolve(context.Background(), model.PlaceReference{PlaceID: "ChIJ-museo"}, model.FullDetailFields())
	require.NoError(t, err)

	assert.Equal(t, "ChIJ-museo", gotQuery["place_id"])
	assert.Equal(t, "test-key", gotQuery["key"])
	assert.Equal(t, "es", gotQuery["language"])
	for _, f := range []string{"place_id", "name", "formatted_address", "geometry", "rating", "user_ratings_total",
		"formatted_phone_number", "website", "photos", "opening_hours", "reviews", "types"} {
		assert.Contains(t, strings.Split(gotQuery["fields"], ","), f)
	}

	assert.Equal(t, "Museo del Oro", d.Name)
	assert.Equal(t, "Cra. 6 #15-88, Bogotá", d.Address)
	assert.Equal(t, model.Coordinates{Lat: 4.6019, Lng: -74.0721}, d.Coordinates)
	require.NotNil(t, d.Rating)
	assert.Equal(t, 4.8, *d.Rating)
	require.NotNil(t, d.ReviewCount)
	assert.Equal(t, 51234, *d.ReviewCount)
	require.NotNil(t, d.Phone)
	assert.Equal(t, "(601) 3432222", *d.Phone)
	require.NotNil(t, d.Website)
	require.NotNil(t, d.PhotoURL)
	assert.Contains(t, *d.PhotoURL, "maxwidth=400")
	assert.Contains(t, *d.PhotoURL, "photo_reference=ref-1")
	assert.Equal(t, model.ClosedNow, d.OpenNow)
	assert.Equal(t, []string{"lunes: Cerrado", "martes: 9:00–18:00"}, d.Schedule)
	assert.Equal(t, "Impresionante.", d.ReviewExcerpt)
	// no label for museum, raw type is kept
	assert.Equal(t, "museum", d.Category)
}

func TestGoogleClient_PreviewMasksFields(t *testing.T) {
	var fields string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fields = r.URL.Query().Get("fields")
		_, _ = w.Write([]byte(fullResult))
	})

	d, err := client.Resolve(context.Background(), model.PlaceReference{PlaceID: "ChIJ-museo"}, model.PreviewFields())
	require.NoError(t, err)

	assert.NotContains(t, fields, "reviews")
	assert.NotContains(t, fields, "opening_hours")
	assert.Equal(t, "Museo del Oro", d.Name)
	assert.NotNil(t, d.PhotoURL)
	assert.Empty(t, d.ReviewExcerpt)
	assert.Empty(t, d.Category)
	assert.Nil(t, d.ReviewCount)
	assert.Equal(t, model.OpenUnknown, d.OpenNow)
	assert.Empty(t, d.Schedule)
}

func TestGoogleClient_MissingOptionalFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"OK","result":{"name":"Parque","formatted_address":"Calle 1","types":["park"],
			"geometry":{"location":{"lat":1,"lng":2}}}}`))
	})

	d, err := client.Resolve(context.Background(), model.PlaceReference{ResultToken: "click-token"}, model.FullDetailFields())
	require.NoError(t, err)

	assert.Nil(t, d.Rating)
	assert.Nil(t, d.Phone)
	assert.Nil(t, d.Website)
	assert.Nil(t, d.PhotoURL)
	assert.Equal(t, model.OpenUnknown, d.OpenNow)
	assert.NotNil(t, d.Schedule)
	assert.Empty(t, d.Schedule)
	assert.Equal(t, "", d.ReviewExcerpt)
	assert.Equal(t, "Parque", d.Category)
}

func TestGoogleClient_StatusMapping(t *testing.T) {
	cases := []struct {
		name     string
		code     int
		body     string
		notFound bool
	}{
		{name: "zero results", code: 200, body: `{"status":"ZERO_RESULTS"}`, notFound: true},
		{name: "not found", code: 200, body: `{"status":"NOT_FOUND"}`, notFound: true},
		{name: "denied", code: 200, body: `{"status":"REQUEST_DENIED","error_message":"bad key"}`},
		{name: "over limit", code: 200, body: `{"status":"OVER_QUERY_LIMIT"}`},
		{name: "ok without result", code: 200, body: `{"status":"OK"}`},
		{name: "ok without geometry", code: 200, body: `{"status":"OK","result":{"name":"Parque","formatted_address":"Calle 1"}}`},
		{name: "http 500", code: 500, body: `boom`},
		{name: "bad json", code: 200, body: `{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := client.Resolve(context.Background(), model.PlaceReference{PlaceID: "x"}, model.FullDetailFields())
			require.Error(t, err)
			assert.Equal(t, tc.notFound, IsNotFound(err))
			assert.Equal(t, !tc.notFound, IsProviderError(err))
		})
	}
}

func TestGoogleClient_GeometryOnlyRequiredWhenRequested(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"OK","result":{"name":"Parque","formatted_address":"Calle 1"}}`))
	})

	_, err := client.Resolve(context.Background(), model.PlaceReference{PlaceID: "x"}, model.FullDetailFields())
	require.Error(t, err)
	assert.True(t, IsProviderError(err))

	d, err := client.Resolve(context.Background(), model.PlaceReference{PlaceID: "x"}, model.NewFieldSet(model.FieldPlaceName))
	require.NoError(t, err)
	assert.Equal(t, "Parque", d.Name)
}

func TestGoogleClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	client := NewGoogleClient(GoogleConfig{APIKey: "k", BaseURL: srv.URL}, zerolog.Nop())

	_, err := client.Resolve(context.Background(), model.PlaceReference{PlaceID: "x"}, nil)
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
	assert.Equal(t, "provider_error", FailureReason(err))
}

func TestGoogleClient_UnresolvableReference(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := client.Resolve(context.Background(), model.PlaceReference{Location: &model.Coordinates{Lat: 1, Lng: 1}}, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, called)
}
