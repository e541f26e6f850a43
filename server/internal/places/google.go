package places

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"place-explorer/server/internal/domain"
	"place-explorer/server/internal/metrics"
	"place-explorer/server/internal/model"
)

const (
	defaultBaseURL       = "https://maps.googleapis.com/maps/api/place"
	defaultTimeout       = 10 * time.Second
	defaultPhotoMaxWidth = 400
)

// providerFields maps each FieldName to the Details API field it needs.
var providerFields = map[model.FieldName]string{
	model.FieldPlaceName:    "name",
	model.FieldAddress:      "formatted_address",
	model.FieldCoordinates:  "geometry",
	model.FieldRating:       "rating",
	model.FieldReviewCount:  "user_ratings_total",
	model.FieldPhone:        "formatted_phone_number",
	model.FieldWebsite:      "website",
	model.FieldPhoto:        "photos",
	model.FieldOpeningHours: "opening_hours",
	model.FieldReviews:      "reviews",
	model.FieldCategory:     "types",
}

// GoogleConfig configures a GoogleClient. Zero values pick defaults.
type GoogleConfig struct {
	APIKey        string
	BaseURL       string
	Language      string
	Timeout       time.Duration
	PhotoMaxWidth int
	Labels        domain.CategoryLabels
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// GoogleClient resolves references through the Places Details web service.
type GoogleClient struct {
	httpClient    *http.Client
	apiKey        string
	baseURL       string
	language      string
	photoMaxWidth int
	labels        domain.CategoryLabels
	logger        zerolog.Logger
}

func NewGoogleClient(cfg GoogleConfig, logger zerolog.Logger) *GoogleClient {
	c := &GoogleClient{
		httpClient:    cfg.HTTPClient,
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		language:      cfg.Language,
		photoMaxWidth: cfg.PhotoMaxWidth,
		labels:        cfg.Labels,
		logger:        logger.With().Str("component", "places").Logger(),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.photoMaxWidth <= 0 {
		c.photoMaxWidth = defaultPhotoMaxWidth
	}
	if c.labels == nil {
		c.labels = domain.DefaultCategoryLabels()
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	return c
}

// Resolve performs one Details call. An empty field set means full detail.
func (c *GoogleClient) Resolve(ctx context.Context, ref model.PlaceReference, fields model.FieldSet) (model.PlaceDetails, error) {
	id := ref.ProviderID()
	if id == "" {
		return model.PlaceDetails{}, errors.Wrap(ErrNotFound, "reference carries no provider id")
	}
	if len(fields) == 0 {
		fields = model.FullDetailFields()
	}

	q := url.Values{}
	q.Set("place_id", id)
	q.Set("fields", providerFieldList(fields))
	q.Set("key", c.apiKey)
	if c.language != "" {
		q.Set("language", c.language)
	}
	u := c.baseURL + "/details/json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.PlaceDetails{}, c.fail(&ProviderError{Status: "request", Err: err})
	}

	metrics.LookupsTotal.WithLabelValues(fieldSetLabel(fields)).Inc()
	start := time.Now()
	c.logger.Debug().Str("place_id", id).Str("source", string(ref.Source())).Msg("details_req")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.PlaceDetails{}, c.fail(&ProviderError{Status: "transport", Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.PlaceDetails{}, c.fail(&ProviderError{
			Status:  strconv.Itoa(resp.StatusCode),
			Message: strings.TrimSpace(string(body)),
		})
	}

	var r detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return model.PlaceDetails{}, c.fail(&ProviderError{Status: "decode", Err: err})
	}

	dur := time.Since(start).Milliseconds()
	metrics.LookupDurationMs.Observe(float64(dur))
	c.logger.Debug().
		Str("place_id", id).
		Str("status", r.Status).
		Int64("duration_ms", dur).
		Msg("details_resp")

	switch r.Status {
	case "OK":
		if r.Result == nil {
			return model.PlaceDetails{}, c.fail(&ProviderError{Status: r.Status, Message: "empty result"})
		}
		// a place without a location cannot be shown on the map
		if fields.Has(model.FieldCoordinates) && r.Result.Geometry == nil {
			return model.PlaceDetails{}, c.fail(&ProviderError{Status: r.Status, Message: "result has no geometry"})
		}
	case "ZERO_RESULTS", "NOT_FOUND":
		return model.PlaceDetails{}, c.fail(errors.Wrapf(ErrNotFound, "place %s", id))
	default:
		return model.PlaceDetails{}, c.fail(&ProviderError{Status: r.Status, Message: r.ErrorMessage})
	}

	return c.normalize(*r.Result, fields), nil
}

func (c *GoogleClient) fail(err error) error {
	metrics.LookupFailuresTotal.WithLabelValues(FailureReason(err)).Inc()
	c.logger.Warn().Err(err).Msg("details_failed")
	return err
}

// normalize maps a provider result to PlaceDetails, keeping only the
// requested fields.
func (c *GoogleClient) normalize(res placeResult, fields model.FieldSet) model.PlaceDetails {
	d := model.PlaceDetails{
		PlaceID:  res.PlaceID,
		OpenNow:  model.OpenUnknown,
		Schedule: []string{},
	}
	if fields.Has(model.FieldPlaceName) {
		d.Name = res.Name
	}
	if fields.Has(model.FieldAddress) {
		d.Address = res.FormattedAddress
	}
	if fields.Has(model.FieldCoordinates) && res.Geometry != nil {
		d.Coordinates = model.Coordinates{Lat: res.Geometry.Location.Lat, Lng: res.Geometry.Location.Lng}
	}
	if fields.Has(model.FieldRating) {
		d.Rating = res.Rating
	}
	if fields.Has(model.FieldReviewCount) {
		d.ReviewCount = res.UserRatingsTotal
	}
	if fields.Has(model.FieldPhone) {
		d.Phone = nonEmpty(res.FormattedPhoneNumber)
	}
	if fields.Has(model.FieldWebsite) {
		d.Website = nonEmpty(res.Website)
	}
	if fields.Has(model.FieldPhoto) && len(res.Photos) > 0 && res.Photos[0].PhotoReference != "" {
		u := c.photoURL(res.Photos[0].PhotoReference)
		d.PhotoURL = &u
	}
	if fields.Has(model.FieldOpeningHours) && res.OpeningHours != nil {
		d.OpenNow = model.OpenStateOf(res.OpeningHours.OpenNow)
		d.Schedule = append(d.Schedule, res.OpeningHours.WeekdayText...)
	}
	if fields.Has(model.FieldReviews) && len(res.Reviews) > 0 {
		d.ReviewExcerpt = res.Reviews[0].Text
	}
	if fields.Has(model.FieldCategory) {
		d.Category = c.labels.Label(res.Types)
	}
	return d
}

func (c *GoogleClient) photoURL(ref string) string {
	q := url.Values{}
	q.Set("maxwidth", strconv.Itoa(c.photoMaxWidth))
	q.Set("photo_reference", ref)
	q.Set("key", c.apiKey)
	return c.baseURL + "/photo?" + q.Encode()
}

func providerFieldList(fields model.FieldSet) string {
	// place_id is always requested.
	out := []string{"place_id"}
	for _, n := range fields.Names() {
		if f, ok := providerFields[n]; ok {
			out = append(out, f)
		}
	}
	return strings.Join(out, ",")
}

func fieldSetLabel(fields model.FieldSet) string {
	switch {
	case fields.Equal(model.FullDetailFields()):
		return "full"
	case fields.Equal(model.PreviewFields()):
		return "preview"
	default:
		return "custom"
	}
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}
