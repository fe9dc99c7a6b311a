// Package orbital wraps the external orbital-propagator HTTP service.
// Every call is routed through the "orbital" circuit breaker; a
// deterministic MockClient is selectable in place of the HTTP client for
// tests and for offline operation.
package orbital

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/stellarops/core/internal/resilience"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/xerrors"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxBodySize = 1 << 20
)

// Config configures Client.
type Config struct {
	BaseURL        string        `env:"ORBITAL_BASE_URL"`
	Timeout        time.Duration `env:"ORBITAL_TIMEOUT"`
	RateLimitPerS  float64       `env:"ORBITAL_RATE_LIMIT_PER_S"`
	RateBurst      int           `env:"ORBITAL_RATE_BURST"`
}

// Position is a propagated state vector at one instant.
type Position struct {
	Position store.Vector3
	Velocity store.Vector3
	Geodetic Geodetic
}

// Geodetic is a latitude/longitude/altitude triple.
type Geodetic struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKM   float64
}

// Pass is one visibility window between a satellite and a ground station.
type Pass struct {
	StartSec int64
	EndSec   int64
	MaxElevationDeg float64
}

// Health is the orbital service's self-reported health.
type Health struct {
	Healthy       bool
	Version       string
	UptimeSeconds int64
}

// Client is the typed orbital propagator client. All methods must be
// invoked through a *resilience.Registry's "orbital" breaker by the caller
// (the conjunction detector and COA planner do this); Client itself only
// performs the HTTP/JSON exchange and JSON shaping.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New builds an HTTP-backed Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	var limiter *rate.Limiter
	if cfg.RateLimitPerS > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerS), burst)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// PropagatePosition returns the propagated state vector for one instant.
func (c *Client) PropagatePosition(ctx context.Context, satID, tle1, tle2 string, t time.Time) (Position, error) {
	if err := c.wait(ctx); err != nil {
		return Position{}, err
	}
	reqBody := map[string]any{
		"satellite_id": satID,
		"tle_line1":    tle1,
		"tle_line2":    tle2,
		"timestamp":    t.Unix(),
	}
	var resp struct {
		Success bool `json:"success"`
		Position struct {
			XKM float64 `json:"x_km"`
			YKM float64 `json:"y_km"`
			ZKM float64 `json:"z_km"`
		} `json:"position"`
		Velocity struct {
			VXKMS float64 `json:"vx_km_s"`
			VYKMS float64 `json:"vy_km_s"`
			VZKMS float64 `json:"vz_km_s"`
		} `json:"velocity"`
		Geodetic struct {
			LatitudeDeg  float64 `json:"latitude_deg"`
			LongitudeDeg float64 `json:"longitude_deg"`
			AltitudeKM   float64 `json:"altitude_km"`
		} `json:"geodetic"`
		ErrorMessage string `json:"error_message"`
	}
	if err := c.post(ctx, "/api/propagate", reqBody, &resp); err != nil {
		return Position{}, err
	}
	if !resp.Success {
		return Position{}, xerrors.Wrap(xerrors.KindTransient, "propagate_position failed", fmt.Errorf("%s", resp.ErrorMessage))
	}
	return Position{
		Position: store.Vector3{X: resp.Position.XKM, Y: resp.Position.YKM, Z: resp.Position.ZKM},
		Velocity: store.Vector3{X: resp.Velocity.VXKMS, Y: resp.Velocity.VYKMS, Z: resp.Velocity.VZKMS},
		Geodetic: Geodetic(resp.Geodetic),
	}, nil
}

// PropagateTrajectory samples positions over [start, end] at a uniform step.
func (c *Client) PropagateTrajectory(ctx context.Context, satID, tle1, tle2 string, start, end time.Time, stepSeconds int) ([]store.TrajectoryPoint, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	reqBody := map[string]any{
		"satellite_id": satID,
		"tle_line1":    tle1,
		"tle_line2":    tle2,
		"start":        start.Unix(),
		"end":          end.Unix(),
		"step_seconds": stepSeconds,
	}
	var resp struct {
		Success bool `json:"success"`
		Points  []struct {
			TimestampSec int64   `json:"timestamp"`
			XKM          float64 `json:"x_km"`
			YKM          float64 `json:"y_km"`
			ZKM          float64 `json:"z_km"`
		} `json:"points"`
		ErrorMessage string `json:"error_message"`
	}
	if err := c.post(ctx, "/api/trajectory", reqBody, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, xerrors.Wrap(xerrors.KindTransient, "propagate_trajectory failed", fmt.Errorf("%s", resp.ErrorMessage))
	}
	out := make([]store.TrajectoryPoint, 0, len(resp.Points))
	for _, p := range resp.Points {
		out = append(out, store.TrajectoryPoint{
			TimestampSec: p.TimestampSec,
			Position:     store.Vector3{X: p.XKM, Y: p.YKM, Z: p.ZKM},
		})
	}
	return out, nil
}

// CalculateVisibility returns the ground-station passes in [start, end].
func (c *Client) CalculateVisibility(ctx context.Context, satID, tle1, tle2 string, gs store.GroundStation, start, end time.Time) ([]Pass, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	reqBody := map[string]any{
		"satellite_id": satID,
		"tle_line1":    tle1,
		"tle_line2":    tle2,
		"start":        start.Unix(),
		"end":          end.Unix(),
		"ground_station": map[string]any{
			"id":                gs.ID,
			"name":              gs.Name,
			"latitude_deg":      gs.LatitudeDeg,
			"longitude_deg":     gs.LongitudeDeg,
			"altitude_m":        gs.AltitudeM,
			"min_elevation_deg": gs.MinElevationDeg,
		},
	}
	var resp struct {
		Success bool `json:"success"`
		Passes  []struct {
			StartSec       int64   `json:"start"`
			EndSec         int64   `json:"end"`
			MaxElevation   float64 `json:"max_elevation_deg"`
		} `json:"passes"`
		ErrorMessage string `json:"error_message"`
	}
	if err := c.post(ctx, "/api/visibility", reqBody, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, xerrors.Wrap(xerrors.KindTransient, "calculate_visibility failed", fmt.Errorf("%s", resp.ErrorMessage))
	}
	out := make([]Pass, 0, len(resp.Passes))
	for _, p := range resp.Passes {
		out = append(out, Pass{StartSec: p.StartSec, EndSec: p.EndSec, MaxElevationDeg: p.MaxElevation})
	}
	return out, nil
}

// Health reports the propagator service's self-reported health.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return Health{}, fmt.Errorf("orbital: create request: %w", err)
	}
	var resp struct {
		Healthy       bool   `json:"healthy"`
		Version       string `json:"version"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	}
	if err := c.do(req, &resp); err != nil {
		return Health{}, err
	}
	return Health(resp), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return xerrors.Wrap(xerrors.KindTimeout, "orbital rate limiter wait", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("orbital: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("orbital: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.KindTransient, "orbital request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodySize))
	if err != nil {
		return fmt.Errorf("orbital: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return xerrors.Wrap(xerrors.KindTransient, "orbital error response", fmt.Errorf("%s: %s", resp.Status, string(body)))
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("orbital: decode response: %w", err)
		}
	}
	return nil
}

// ViaBreaker wraps a Caller (Client or MockClient) so every call goes
// through the named "orbital" breaker.
type ViaBreaker struct {
	Inner    Caller
	Breakers *resilience.Registry

	// Fallback, when set, routes PropagatePosition and PropagateTrajectory
	// through the cache-then-fallback policy: a circuit_open or timeout
	// result is served from the last cached
	// position/trajectory for that satellite before Degraded is consulted.
	// CalculateVisibility and Health call the breaker directly, since a
	// stale visibility window or health check is not a useful substitute.
	Fallback *resilience.WithFallback
	// Degraded supplies a value when the orbital breaker is degraded and no
	// cached value is available yet, e.g. a deterministic MockClient kept
	// alive purely as a last-resort estimate.
	Degraded Caller
}

// Caller is the subset of Client's surface the rest of the module depends
// on; MockClient satisfies it too.
type Caller interface {
	PropagatePosition(ctx context.Context, satID, tle1, tle2 string, t time.Time) (Position, error)
	PropagateTrajectory(ctx context.Context, satID, tle1, tle2 string, start, end time.Time, stepSeconds int) ([]store.TrajectoryPoint, error)
	CalculateVisibility(ctx context.Context, satID, tle1, tle2 string, gs store.GroundStation, start, end time.Time) ([]Pass, error)
	Health(ctx context.Context) (Health, error)
}

var _ Caller = (*Client)(nil)

func (v *ViaBreaker) PropagatePosition(ctx context.Context, satID, tle1, tle2 string, t time.Time) (Position, error) {
	if v.Fallback == nil {
		var out Position
		err := v.Breakers.Call(ctx, "orbital", func(ctx context.Context) error {
			var err error
			out, err = v.Inner.PropagatePosition(ctx, satID, tle1, tle2, t)
			return err
		}, nil)
		return out, err
	}

	res, err := v.Fallback.Run(ctx, resilience.Options{
		BreakerName: "orbital",
		CacheKey:    "position:" + satID,
		Encode:      func(result any) ([]byte, error) { return json.Marshal(result) },
		Decode: func(data []byte) (any, error) {
			var p Position
			if err := json.Unmarshal(data, &p); err != nil {
				return nil, err
			}
			return p, nil
		},
		Fallback: v.degradedPositionFallback(satID, tle1, tle2, t),
	}, func(ctx context.Context) (any, error) {
		return v.Inner.PropagatePosition(ctx, satID, tle1, tle2, t)
	})
	if err != nil {
		return Position{}, err
	}
	return res.(Position), nil
}

func (v *ViaBreaker) degradedPositionFallback(satID, tle1, tle2 string, t time.Time) func(context.Context) (any, error) {
	if v.Degraded == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		return v.Degraded.PropagatePosition(ctx, satID, tle1, tle2, t)
	}
}

func (v *ViaBreaker) PropagateTrajectory(ctx context.Context, satID, tle1, tle2 string, start, end time.Time, stepSeconds int) ([]store.TrajectoryPoint, error) {
	if v.Fallback == nil {
		var out []store.TrajectoryPoint
		err := v.Breakers.Call(ctx, "orbital", func(ctx context.Context) error {
			var err error
			out, err = v.Inner.PropagateTrajectory(ctx, satID, tle1, tle2, start, end, stepSeconds)
			return err
		}, nil)
		return out, err
	}

	cacheKey := fmt.Sprintf("trajectory:%s:%d:%d:%d", satID, start.Unix(), end.Unix(), stepSeconds)
	var fallbackFn func(context.Context) (any, error)
	if v.Degraded != nil {
		fallbackFn = func(ctx context.Context) (any, error) {
			return v.Degraded.PropagateTrajectory(ctx, satID, tle1, tle2, start, end, stepSeconds)
		}
	}
	res, err := v.Fallback.Run(ctx, resilience.Options{
		BreakerName: "orbital",
		CacheKey:    cacheKey,
		Encode:      func(result any) ([]byte, error) { return json.Marshal(result) },
		Decode: func(data []byte) (any, error) {
			var pts []store.TrajectoryPoint
			if err := json.Unmarshal(data, &pts); err != nil {
				return nil, err
			}
			return pts, nil
		},
		Fallback: fallbackFn,
	}, func(ctx context.Context) (any, error) {
		return v.Inner.PropagateTrajectory(ctx, satID, tle1, tle2, start, end, stepSeconds)
	})
	if err != nil {
		return nil, err
	}
	return res.([]store.TrajectoryPoint), nil
}

func (v *ViaBreaker) CalculateVisibility(ctx context.Context, satID, tle1, tle2 string, gs store.GroundStation, start, end time.Time) ([]Pass, error) {
	var out []Pass
	err := v.Breakers.Call(ctx, "orbital", func(ctx context.Context) error {
		var err error
		out, err = v.Inner.CalculateVisibility(ctx, satID, tle1, tle2, gs, start, end)
		return err
	}, nil)
	return out, err
}

func (v *ViaBreaker) Health(ctx context.Context) (Health, error) {
	var out Health
	err := v.Breakers.Call(ctx, "orbital", func(ctx context.Context) error {
		var err error
		out, err = v.Inner.Health(ctx)
		return err
	}, nil)
	return out, err
}

var _ Caller = (*ViaBreaker)(nil)
