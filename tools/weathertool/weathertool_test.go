package weathertool_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/tools/weathertool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRegistrator struct {
	names []string
}

func (m *mockRegistrator) RegisterTool(name, description string, handler any) error {
	m.names = append(m.names, name)
	return nil
}

const geocodePayload = `{
	"results": [
		{"name": "Berlin", "country": "Germany", "country_code": "DE", "admin1": "Berlin", "latitude": 52.52, "longitude": 13.41, "timezone": "Europe/Berlin", "population": 3426354},
		{"name": "Berlin", "country": "United States", "country_code": "US", "admin1": "New Hampshire", "latitude": 44.47, "longitude": -71.19, "population": 9367},
		{"name": "Berlin", "country": "United States", "country_code": "US", "admin1": "Wisconsin", "latitude": 43.97, "longitude": -88.94, "population": 5420}
	]
}`

const forecastPayload = `{
	"timezone": "Europe/Berlin",
	"daily": {
		"time": ["2025-06-01", "2025-06-02"],
		"weather_code": [0, 61],
		"temperature_2m_max": [22.1, 17.4],
		"temperature_2m_min": [12.3, 10.8],
		"precipitation_sum": [0, 4.2],
		"wind_speed_10m_max": [5.1, 9.8]
	}
}`

// testProvider serves canned Open-Meteo payloads and captures the query of
// the last request to each endpoint.
func testProvider(t *testing.T) (*weathertool.Provider, *url.Values, *url.Values) {
	t.Helper()

	var geocodeQuery, forecastQuery url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		geocodeQuery = r.URL.Query()
		_, _ = w.Write([]byte(geocodePayload))
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		forecastQuery = r.URL.Query()
		_, _ = w.Write([]byte(forecastPayload))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := weathertool.New().
		WithBaseURLs(srv.URL+"/v1/search", srv.URL+"/v1/forecast").
		WithHTTPClient(srv.Client())
	return p, &geocodeQuery, &forecastQuery
}

func Test_Provider_Entries(t *testing.T) {
	p := weathertool.New()
	assert.Equal(t, "weather", p.Name())

	entries, err := p.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	geocode := entries[0]
	require.NoError(t, geocode.Validate())
	assert.Equal(t, "geocode_city", geocode.Name)
	assert.Equal(t, "weather", geocode.Provider)
	assert.False(t, geocode.Scalar())
	assert.Equal(t, "name", geocode.Primary)
	assert.Equal(t, []string{"city", "country_code", "state", "lang"}, geocode.ParamNames())

	city, ok := geocode.Param("city")
	require.True(t, ok)
	assert.Equal(t, catalog.KindString, city.Kind)
	assert.True(t, city.Required)
	assert.Equal(t, "Berlin", city.Example)
	assert.Equal(t, "en", geocode.Defaults["lang"])

	forecast := entries[1]
	require.NoError(t, forecast.Validate())
	assert.Equal(t, "get_forecast", forecast.Name)
	assert.False(t, forecast.Scalar())
	assert.Equal(t, []string{"location", "days", "units"}, forecast.ParamNames())

	loc, ok := forecast.Param("location")
	require.True(t, ok)
	assert.Equal(t, catalog.KindObject, loc.Kind)
	assert.True(t, loc.Required)

	days, ok := forecast.Param("days")
	require.True(t, ok)
	assert.Equal(t, catalog.KindNumber, days.Kind)
	assert.False(t, days.Required)

	units, ok := forecast.Param("units")
	require.True(t, ok)
	assert.Equal(t, catalog.KindEnum, units.Kind)
	assert.Equal(t, []string{"metric", "imperial"}, units.Enum)

	assert.EqualValues(t, 5, forecast.Defaults["days"])
	assert.Equal(t, "metric", forecast.Defaults["units"])
}

func Test_Provider_GeocodeCity(t *testing.T) {
	ctx := context.Background()
	p, geocodeQuery, _ := testProvider(t)

	t.Run("most populous wins", func(t *testing.T) {
		resp, err := p.GeocodeCity(ctx, weathertool.GeocodeArgs{City: "Berlin"})
		require.NoError(t, err)

		var loc weathertool.Location
		require.NoError(t, json.Unmarshal([]byte(resp.Text()), &loc))
		assert.Equal(t, "Berlin", loc.Name)
		assert.Equal(t, "DE", loc.CountryCode)
		assert.Equal(t, "Europe/Berlin", loc.Timezone)
		assert.EqualValues(t, 3426354, loc.Population)

		q := *geocodeQuery
		assert.Equal(t, "Berlin", q.Get("name"))
		assert.Equal(t, "10", q.Get("count"))
		assert.Equal(t, "en", q.Get("language"))
		assert.Equal(t, "json", q.Get("format"))
	})

	t.Run("country filter", func(t *testing.T) {
		resp, err := p.GeocodeCity(ctx, weathertool.GeocodeArgs{City: "Berlin", CountryCode: "us"})
		require.NoError(t, err)

		var loc weathertool.Location
		require.NoError(t, json.Unmarshal([]byte(resp.Text()), &loc))
		assert.Equal(t, "US", loc.CountryCode)
		assert.Equal(t, "New Hampshire", loc.Admin1)
	})

	t.Run("state filter", func(t *testing.T) {
		resp, err := p.GeocodeCity(ctx, weathertool.GeocodeArgs{City: "Berlin", State: "wisconsin"})
		require.NoError(t, err)

		var loc weathertool.Location
		require.NoError(t, json.Unmarshal([]byte(resp.Text()), &loc))
		assert.Equal(t, "Wisconsin", loc.Admin1)
	})

	t.Run("unmatched filter falls back", func(t *testing.T) {
		resp, err := p.GeocodeCity(ctx, weathertool.GeocodeArgs{City: "Berlin", CountryCode: "FR"})
		require.NoError(t, err)

		var loc weathertool.Location
		require.NoError(t, json.Unmarshal([]byte(resp.Text()), &loc))
		assert.Equal(t, "DE", loc.CountryCode)
	})

	t.Run("language override", func(t *testing.T) {
		_, err := p.GeocodeCity(ctx, weathertool.GeocodeArgs{City: "Berlin", Lang: "de"})
		require.NoError(t, err)
		assert.Equal(t, "de", (*geocodeQuery).Get("language"))
	})

	t.Run("empty city", func(t *testing.T) {
		_, err := p.GeocodeCity(ctx, weathertool.GeocodeArgs{})
		assert.EqualError(t, err, "city is required")
	})
}

func Test_Provider_GeocodeCity_Errors(t *testing.T) {
	ctx := context.Background()

	mux := http.NewServeMux()
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := weathertool.New().WithBaseURLs(srv.URL+"/empty", srv.URL+"/forecast")
	_, err := p.GeocodeCity(ctx, weathertool.GeocodeArgs{City: "Atlantis"})
	assert.EqualError(t, err, "No matching locations found.")

	p = weathertool.New().WithBaseURLs(srv.URL+"/fail", srv.URL+"/forecast")
	_, err = p.GeocodeCity(ctx, weathertool.GeocodeArgs{City: "Berlin"})
	assert.EqualError(t, err, "Geocoding failed: HTTP 500")
}

func Test_Provider_GetForecast(t *testing.T) {
	ctx := context.Background()
	p, _, forecastQuery := testProvider(t)

	loc := weathertool.Location{
		Name:      "Berlin",
		Latitude:  52.52,
		Longitude: 13.41,
	}

	t.Run("metric", func(t *testing.T) {
		resp, err := p.GetForecast(ctx, weathertool.ForecastArgs{Location: loc, Days: 2})
		require.NoError(t, err)

		q := *forecastQuery
		assert.Equal(t, "52.52", q.Get("latitude"))
		assert.Equal(t, "13.41", q.Get("longitude"))
		assert.Equal(t, "weather_code,temperature_2m_max,temperature_2m_min,precipitation_sum,wind_speed_10m_max", q.Get("daily"))
		assert.Equal(t, "2", q.Get("forecast_days"))
		assert.Equal(t, "auto", q.Get("timezone"))
		assert.Equal(t, "celsius", q.Get("temperature_unit"))
		assert.Equal(t, "ms", q.Get("wind_speed_unit"))
		assert.Equal(t, "mm", q.Get("precipitation_unit"))

		var out weathertool.Forecast
		require.NoError(t, json.Unmarshal([]byte(resp.Text()), &out))
		assert.Equal(t, "Berlin", out.Location.Name)
		assert.Equal(t, "Europe/Berlin", out.Location.Timezone)
		assert.Equal(t, "metric", out.Units)
		assert.Equal(t, "Open-Meteo", out.Source)
		require.Len(t, out.Daily, 2)
		assert.Equal(t, "2025-06-01", out.Daily[0].Date)
		assert.Equal(t, "Clear sky", out.Daily[0].WeatherDescription)
		assert.Equal(t, "Slight rain", out.Daily[1].WeatherDescription)
		assert.InDelta(t, 17.4, out.Daily[1].TempMax, 0.001)
		assert.InDelta(t, 4.2, out.Daily[1].PrecipitationSum, 0.001)
	})

	t.Run("imperial", func(t *testing.T) {
		_, err := p.GetForecast(ctx, weathertool.ForecastArgs{Location: loc, Units: "imperial"})
		require.NoError(t, err)

		q := *forecastQuery
		assert.Equal(t, "fahrenheit", q.Get("temperature_unit"))
		assert.Equal(t, "mph", q.Get("wind_speed_unit"))
		assert.Equal(t, "inch", q.Get("precipitation_unit"))
	})

	t.Run("default days", func(t *testing.T) {
		_, err := p.GetForecast(ctx, weathertool.ForecastArgs{Location: loc})
		require.NoError(t, err)
		assert.Equal(t, "5", (*forecastQuery).Get("forecast_days"))
	})

	t.Run("days out of range", func(t *testing.T) {
		_, err := p.GetForecast(ctx, weathertool.ForecastArgs{Location: loc, Days: 20})
		assert.EqualError(t, err, "days must be between 1 and 16 (Open-Meteo limit).")

		_, err = p.GetForecast(ctx, weathertool.ForecastArgs{Location: loc, Days: -1})
		assert.EqualError(t, err, "days must be between 1 and 16 (Open-Meteo limit).")
	})
}

func Test_Provider_RegisterMCP(t *testing.T) {
	reg := &mockRegistrator{}
	require.NoError(t, weathertool.New().RegisterMCP(reg))
	assert.Equal(t, []string{"geocode_city", "get_forecast"}, reg.names)
}

func Test_WeatherDescription(t *testing.T) {
	assert.Equal(t, "Clear sky", weathertool.WeatherDescription(0))
	assert.Equal(t, "Thunderstorm", weathertool.WeatherDescription(95))
	assert.Equal(t, "Unknown", weathertool.WeatherDescription(999))
}
