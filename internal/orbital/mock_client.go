package orbital

import (
	"context"
	"math"
	"time"

	"github.com/stellarops/core/internal/store"
)

// MockClient is the deterministic stand-in for Client, selectable via
// configuration for tests and offline operation. It derives a simple
// circular orbit from the satellite id's hash so repeated calls with the
// same inputs always agree.
type MockClient struct {
	// AltitudeKM is the assumed circular-orbit altitude for every satellite.
	AltitudeKM float64
}

// NewMockClient builds a MockClient at the given default altitude.
func NewMockClient(altitudeKM float64) *MockClient {
	if altitudeKM <= 0 {
		altitudeKM = 550
	}
	return &MockClient{AltitudeKM: altitudeKM}
}

const earthRadiusKM = 6378.137
const muEarth = 398600.4418 // km^3/s^2, matches internal/coa's constant

func (m *MockClient) orbitalPeriodSeconds(r float64) float64 {
	return 2 * math.Pi * math.Sqrt(r*r*r/muEarth)
}

// position returns a deterministic circular-orbit position/velocity for id
// at time t, phased by a hash of id so distinct satellites diverge.
func (m *MockClient) position(id string, t time.Time) (store.Vector3, store.Vector3) {
	r := earthRadiusKM + m.AltitudeKM
	period := m.orbitalPeriodSeconds(r)
	phase := float64(hashString(id)%1000) / 1000 * 2 * math.Pi
	theta := phase + 2*math.Pi*float64(t.Unix())/period

	pos := store.Vector3{X: r * math.Cos(theta), Y: r * math.Sin(theta), Z: 0}
	speed := 2 * math.Pi * r / period
	vel := store.Vector3{X: -speed * math.Sin(theta), Y: speed * math.Cos(theta), Z: 0}
	return pos, vel
}

func hashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// PropagatePosition returns a deterministic circular-orbit state vector.
func (m *MockClient) PropagatePosition(_ context.Context, satID, _, _ string, t time.Time) (Position, error) {
	pos, vel := m.position(satID, t)
	r := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	return Position{
		Position: pos,
		Velocity: vel,
		Geodetic: Geodetic{LatitudeDeg: 0, LongitudeDeg: 0, AltitudeKM: r - earthRadiusKM},
	}, nil
}

// PropagateTrajectory samples PropagatePosition at a uniform step.
func (m *MockClient) PropagateTrajectory(_ context.Context, satID, _, _ string, start, end time.Time, stepSeconds int) ([]store.TrajectoryPoint, error) {
	if stepSeconds <= 0 {
		stepSeconds = 60
	}
	var out []store.TrajectoryPoint
	for ts := start; !ts.After(end); ts = ts.Add(time.Duration(stepSeconds) * time.Second) {
		pos, vel := m.position(satID, ts)
		v := vel
		out = append(out, store.TrajectoryPoint{
			TimestampSec: ts.Unix(),
			Position:     pos,
			Velocity:     &v,
		})
	}
	return out, nil
}

// CalculateVisibility reports the whole window as one pass with a fixed
// elevation; sufficient for deterministic offline exercising of the
// downlink-scheduling path.
func (m *MockClient) CalculateVisibility(_ context.Context, _, _, _ string, gs store.GroundStation, start, end time.Time) ([]Pass, error) {
	if !gs.Online {
		return nil, nil
	}
	return []Pass{{StartSec: start.Unix(), EndSec: end.Unix(), MaxElevationDeg: 45}}, nil
}

// Health always reports healthy.
func (m *MockClient) Health(_ context.Context) (Health, error) {
	return Health{Healthy: true, Version: "mock", UptimeSeconds: 0}, nil
}

var _ Caller = (*MockClient)(nil)
