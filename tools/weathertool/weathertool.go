// Package weathertool serves the weather demo tools backed by Open-Meteo:
// geocode_city resolves a city name to a location object, and get_forecast
// returns a daily forecast for a resolved location. Both produce structured
// results, and a plan chains them by passing the geocoded location whole
// into the forecast call.
package weathertool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/mcp"
	"github.com/effective-security/toolplan/pkg/llmutils"
	"github.com/effective-security/toolplan/tools"
	"github.com/effective-security/x/values"
)

// ProviderName is the provider key the catalog entries carry.
const ProviderName = "weather"

const (
	geocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	forecastURL = "https://api.open-meteo.com/v1/forecast"

	// UnitsMetric and UnitsImperial select the measurement system of a
	// forecast.
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"

	// DefaultDays is the forecast length used when a call does not ask for
	// one.
	DefaultDays = 5

	descGeocode  = "Resolve a city name to a location with coordinates. Optionally disambiguate with country_code and state."
	descForecast = "Daily weather forecast for a resolved location."
)

// GeocodeArgs are the arguments of geocode_city.
type GeocodeArgs struct {
	City        string `json:"city" jsonschema:"description=City name to resolve,example=Berlin"`
	CountryCode string `json:"country_code,omitempty" jsonschema:"description=Two-letter country code to disambiguate,example=DE"`
	State       string `json:"state,omitempty" jsonschema:"description=State or region name to disambiguate"`
	Lang        string `json:"lang,omitempty" jsonschema:"description=Language of returned place names,example=en"`
}

// Location is the structured result of geocode_city and the location
// argument of get_forecast. The field layout follows the Open-Meteo
// geocoding response.
type Location struct {
	Name        string  `json:"name" jsonschema:"description=Place name"`
	Country     string  `json:"country,omitempty" jsonschema:"description=Country name"`
	CountryCode string  `json:"country_code,omitempty" jsonschema:"description=Two-letter country code"`
	Admin1      string  `json:"admin1,omitempty" jsonschema:"description=State or region"`
	Latitude    float64 `json:"latitude" jsonschema:"description=Latitude in degrees"`
	Longitude   float64 `json:"longitude" jsonschema:"description=Longitude in degrees"`
	Timezone    string  `json:"timezone,omitempty" jsonschema:"description=IANA time zone"`
	Population  int64   `json:"population,omitempty" jsonschema:"description=Population count"`
}

// ForecastArgs are the arguments of get_forecast.
type ForecastArgs struct {
	Location Location `json:"location" jsonschema:"description=Resolved location from geocode_city"`
	Days     int      `json:"days,omitempty" jsonschema:"description=Number of forecast days (1-16),example=3"`
	Units    string   `json:"units,omitempty" jsonschema:"enum=metric,enum=imperial,description=Measurement system"`
}

// Day is one day of a forecast.
type Day struct {
	Date               string  `json:"date"`
	WeatherCode        int     `json:"weather_code"`
	WeatherDescription string  `json:"weather_description"`
	TempMin            float64 `json:"temp_min"`
	TempMax            float64 `json:"temp_max"`
	PrecipitationSum   float64 `json:"precipitation_sum"`
	WindSpeedMax       float64 `json:"wind_speed_max"`
}

// Forecast is the structured result of get_forecast.
type Forecast struct {
	Location Location `json:"location"`
	Daily    []Day    `json:"daily"`
	Units    string   `json:"units"`
	Source   string   `json:"source"`
}

// Provider serves the weather tools.
type Provider struct {
	geocodeURL  string
	forecastURL string
	httpClient  *http.Client
}

var _ tools.Provider = (*Provider)(nil)

// New creates the weather provider against the public Open-Meteo endpoints.
func New() *Provider {
	return &Provider{
		geocodeURL:  geocodeURL,
		forecastURL: forecastURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURLs overrides the geocoding and forecast endpoints.
func (p *Provider) WithBaseURLs(geocode, forecast string) *Provider {
	p.geocodeURL = geocode
	p.forecastURL = forecast
	return p
}

// WithHTTPClient sets the HTTP client used for Open-Meteo requests.
func (p *Provider) WithHTTPClient(client *http.Client) *Provider {
	p.httpClient = client
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

// Entries describes the two tools to the plan catalog. The geocoded
// location's primary scalar is its place name; forecasts default to five
// metric days.
func (p *Provider) Entries() ([]*catalog.Entry, error) {
	geocode, err := catalog.Reflect("geocode_city", descGeocode,
		reflect.TypeOf(GeocodeArgs{}), catalog.StructuredResult)
	if err != nil {
		return nil, err
	}
	geocode.WithProvider(ProviderName).
		WithPrimary("name").
		WithDefaults(values.MapAny{"lang": "en"})

	forecast, err := catalog.Reflect("get_forecast", descForecast,
		reflect.TypeOf(ForecastArgs{}), catalog.StructuredResult)
	if err != nil {
		return nil, err
	}
	forecast.WithProvider(ProviderName).
		WithDefaults(values.MapAny{"days": DefaultDays, "units": UnitsMetric})

	return []*catalog.Entry{geocode, forecast}, nil
}

// RegisterMCP registers both tools with an MCP server.
func (p *Provider) RegisterMCP(registrator tools.McpServerRegistrator) error {
	if err := registrator.RegisterTool("geocode_city", descGeocode, p.GeocodeCity); err != nil {
		return err
	}
	return registrator.RegisterTool("get_forecast", descForecast, p.GetForecast)
}

// GeocodeCity resolves a city name to the best matching location.
func (p *Provider) GeocodeCity(ctx context.Context, args GeocodeArgs) (*mcp.ToolResponse, error) {
	if args.City == "" {
		return nil, errors.New("city is required")
	}

	q := url.Values{}
	q.Set("name", args.City)
	q.Set("count", "10")
	q.Set("language", values.StringsCoalesce(args.Lang, "en"))
	q.Set("format", "json")

	var res struct {
		Results []Location `json:"results"`
	}
	if err := p.getJSON(ctx, p.geocodeURL, q, &res); err != nil {
		return nil, errors.WithMessage(err, "Geocoding failed")
	}

	loc, err := chooseMatch(res.Results, args.CountryCode, args.State)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResponse(mcp.NewTextContent(llmutils.ToJSON(loc))), nil
}

// GetForecast returns a daily forecast for an already resolved location.
func (p *Provider) GetForecast(ctx context.Context, args ForecastArgs) (*mcp.ToolResponse, error) {
	if args.Days == 0 {
		args.Days = DefaultDays
	}
	if args.Days < 1 || args.Days > 16 {
		return nil, errors.New("days must be between 1 and 16 (Open-Meteo limit).")
	}
	units := values.StringsCoalesce(args.Units, UnitsMetric)

	q := url.Values{}
	q.Set("latitude", formatCoord(args.Location.Latitude))
	q.Set("longitude", formatCoord(args.Location.Longitude))
	q.Set("daily", strings.Join([]string{
		"weather_code",
		"temperature_2m_max",
		"temperature_2m_min",
		"precipitation_sum",
		"wind_speed_10m_max",
	}, ","))
	q.Set("forecast_days", strconv.Itoa(args.Days))
	q.Set("timezone", "auto")
	unitsParams(units, q)

	var res struct {
		Timezone string `json:"timezone"`
		Daily    struct {
			Time             []string  `json:"time"`
			WeatherCode      []int     `json:"weather_code"`
			TemperatureMax   []float64 `json:"temperature_2m_max"`
			TemperatureMin   []float64 `json:"temperature_2m_min"`
			PrecipitationSum []float64 `json:"precipitation_sum"`
			WindSpeedMax     []float64 `json:"wind_speed_10m_max"`
		} `json:"daily"`
	}
	if err := p.getJSON(ctx, p.forecastURL, q, &res); err != nil {
		return nil, errors.WithMessage(err, "Forecast fetch failed")
	}

	loc := args.Location
	if res.Timezone != "" {
		loc.Timezone = res.Timezone
	}

	out := Forecast{
		Location: loc,
		Units:    units,
		Source:   "Open-Meteo",
	}
	for i, date := range res.Daily.Time {
		code := at(res.Daily.WeatherCode, i)
		out.Daily = append(out.Daily, Day{
			Date:               date,
			WeatherCode:        code,
			WeatherDescription: WeatherDescription(code),
			TempMin:            at(res.Daily.TemperatureMin, i),
			TempMax:            at(res.Daily.TemperatureMax, i),
			PrecipitationSum:   at(res.Daily.PrecipitationSum, i),
			WindSpeedMax:       at(res.Daily.WindSpeedMax, i),
		})
	}
	return mcp.NewToolResponse(mcp.NewTextContent(llmutils.ToJSON(out))), nil
}

func (p *Provider) getJSON(ctx context.Context, rawURL string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return errors.WithStack(err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// chooseMatch picks the best geocoding match: filters that would empty the
// list are ignored, and the most populous remaining place wins.
func chooseMatch(results []Location, countryCode, state string) (*Location, error) {
	if len(results) == 0 {
		return nil, errors.New("No matching locations found.")
	}
	filtered := results
	if countryCode != "" {
		cc := strings.ToUpper(strings.TrimSpace(countryCode))
		if m := matching(filtered, func(l Location) bool {
			return strings.ToUpper(l.CountryCode) == cc
		}); len(m) > 0 {
			filtered = m
		}
	}
	if state != "" {
		s := strings.ToLower(strings.TrimSpace(state))
		if m := matching(filtered, func(l Location) bool {
			return strings.ToLower(l.Admin1) == s
		}); len(m) > 0 {
			filtered = m
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Population > filtered[j].Population
	})
	return &filtered[0], nil
}

func matching(list []Location, keep func(Location) bool) []Location {
	var out []Location
	for _, l := range list {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func unitsParams(units string, q url.Values) {
	if units == UnitsImperial {
		q.Set("temperature_unit", "fahrenheit")
		q.Set("wind_speed_unit", "mph")
		q.Set("precipitation_unit", "inch")
		return
	}
	q.Set("temperature_unit", "celsius")
	q.Set("wind_speed_unit", "ms")
	q.Set("precipitation_unit", "mm")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}

// weatherCodes maps WMO weather interpretation codes to descriptions.
var weatherCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// WeatherDescription returns the human description of a WMO weather code.
func WeatherDescription(code int) string {
	if d, ok := weatherCodes[code]; ok {
		return d
	}
	return "Unknown"
}
