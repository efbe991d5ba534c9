package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/resilience"
)

const (
	defaultBaseURL  = "https://maps.googleapis.com"
	geocodeJSONPath = "/maps/api/geocode/json"

	// maxBodyBytes caps how much of a provider response is read.
	maxBodyBytes = 1 << 20
)

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry *struct {
		Location *struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// StatusError is a response whose provider status is not "OK".
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return "geocode: provider status " + e.Status + ": " + e.Message
	}
	return "geocode: provider status " + e.Status
}

// isMiss reports a well-formed response that simply found nothing.
func isMiss(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == "ZERO_RESULTS"
}

// lookupGoogle geocodes a single address using the Google Geocoding API.
func (c *Client) lookupGoogle(ctx context.Context, address string) (model.Coordinate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.Coordinate{}, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{"address": {address}}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	if c.region != "" {
		params.Set("region", c.region)
	}

	reqURL := c.baseURL + geocodeJSONPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "geocode: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "geocode: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return model.Coordinate{}, resilience.HTTPStatusError("geocode", resp.StatusCode, body)
	}

	var gr googleGeocodeResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return model.Coordinate{}, eris.Wrap(err, "geocode: parse response")
	}

	if gr.Status != "OK" {
		return model.Coordinate{}, &StatusError{Status: gr.Status, Message: gr.ErrorMessage}
	}
	if len(gr.Results) == 0 {
		return model.Coordinate{}, &StatusError{Status: "ZERO_RESULTS"}
	}

	first := gr.Results[0]
	if first.Geometry == nil || first.Geometry.Location == nil || first.Geometry.Location.Lat == nil || first.Geometry.Location.Lng == nil {
		return model.Coordinate{}, eris.New("geocode: result has no geometry.location")
	}

	coord := model.Coordinate{Latitude: *first.Geometry.Location.Lat, Longitude: *first.Geometry.Location.Lng}
	if !coord.Valid() {
		return model.Coordinate{}, eris.Errorf("geocode: coordinate out of range (%f, %f)", coord.Latitude, coord.Longitude)
	}
	return coord, nil
}
