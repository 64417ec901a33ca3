package analyzer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/presenced/internal/adapters/evidence"
	"github.com/lcalzada-xor/presenced/internal/core/domain"
	"github.com/lcalzada-xor/presenced/internal/core/ports"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newAcc() *Accumulator {
	return &Accumulator{Details: make(map[string]string)}
}

func TestSignalDetectorBands(t *testing.T) {
	d := &SignalDetector{cfg: DefaultConfig()}

	tests := []struct {
		name  string
		rssi  int
		class domain.SignalClass
		weak  bool
	}{
		{"well below weak", -85, domain.SignalWeak, true},
		{"weak boundary inclusive", -70, domain.SignalWeak, true},
		{"just above weak", -69, domain.SignalMedium, false},
		{"medium boundary inclusive", -50, domain.SignalMedium, false},
		{"just above medium", -49, domain.SignalStrong, false},
		{"very strong", -30, domain.SignalStrong, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := newAcc()
			d.Analyze(context.Background(), &Input{Evidence: domain.Evidence{RSSI: tt.rssi}}, acc)
			assert.Equal(t, tt.class, acc.Proximity.SignalClass)
			assert.Equal(t, tt.weak, acc.Flags.WeakSignal)
			assert.Greater(t, acc.Proximity.EstimatedDistanceM, 0.0)
		})
	}
}

func TestSignalDetectorDistanceMonotonic(t *testing.T) {
	d := &SignalDetector{cfg: DefaultConfig()}

	near, far := newAcc(), newAcc()
	d.Analyze(context.Background(), &Input{Evidence: domain.Evidence{RSSI: -40}}, near)
	d.Analyze(context.Background(), &Input{Evidence: domain.Evidence{RSSI: -80}}, far)
	assert.Less(t, near.Proximity.EstimatedDistanceM, far.Proximity.EstimatedDistanceM)
}

func TestTimingDetector(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	d := &TimingDetector{cfg: DefaultConfig(), clock: clock}
	now := clock.now.UnixMilli()

	tests := []struct {
		name    string
		ageMs   int64
		late    bool
		unusual bool
		detail  bool
	}{
		{"normal", 3000, false, false, false},
		{"too old", 10001, true, false, true},
		{"suspiciously fast", 150, false, true, true},
		{"under human floor", 350, false, false, true},
		{"human floor boundary", 500, false, false, false},
		{"fast boundary", 200, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := newAcc()
			d.Analyze(context.Background(), &Input{RespondedAt: now - tt.ageMs}, acc)
			assert.Equal(t, tt.late, acc.Flags.LateResponse)
			assert.Equal(t, tt.unusual, acc.Flags.UnusualPattern)
			assert.Equal(t, tt.detail, acc.Details["timing"] != "")
		})
	}
}

func newLocationDetector() (*LocationDetector, *evidence.MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	store := evidence.NewMemoryStore(clock)
	return &LocationDetector{cfg: DefaultConfig(), store: store, clock: clock}, store, clock
}

func TestLocationDetectorNoLocation(t *testing.T) {
	d, _, _ := newLocationDetector()
	acc := newAcc()
	d.Analyze(context.Background(), &Input{ParticipantID: "p1"}, acc)
	assert.False(t, acc.Flags.InvalidLocation)
	assert.False(t, acc.Flags.MockedLocation)
}

func TestLocationDetectorNullIsland(t *testing.T) {
	d, _, clock := newLocationDetector()
	acc := newAcc()
	d.Analyze(context.Background(), &Input{
		ParticipantID: "p1",
		Evidence: domain.Evidence{Location: &domain.Location{
			Lat: 0, Lon: 0, Accuracy: 10, Timestamp: clock.now.UnixMilli(),
		}},
	}, acc)
	assert.True(t, acc.Flags.InvalidLocation)
}

func TestLocationDetectorImplausibleAccuracy(t *testing.T) {
	d, _, clock := newLocationDetector()

	for _, tt := range []struct {
		accuracy float64
		mocked   bool
	}{
		{0.9, true},
		{1.0, false},
		{15, false},
	} {
		acc := newAcc()
		d.Analyze(context.Background(), &Input{
			ParticipantID: "p1",
			Evidence: domain.Evidence{Location: &domain.Location{
				Lat: 40.4, Lon: -3.7, Accuracy: tt.accuracy, Timestamp: clock.now.UnixMilli(),
			}},
		}, acc)
		assert.Equal(t, tt.mocked, acc.Flags.MockedLocation, "accuracy %.1f", tt.accuracy)
	}
}

func TestLocationDetectorFutureTimestamp(t *testing.T) {
	d, _, clock := newLocationDetector()
	acc := newAcc()
	d.Analyze(context.Background(), &Input{
		ParticipantID: "p1",
		Evidence: domain.Evidence{Location: &domain.Location{
			Lat: 40.4, Lon: -3.7, Accuracy: 10,
			Timestamp: clock.now.UnixMilli() + 16_000, // beyond one validity window
		}},
	}, acc)
	assert.True(t, acc.Flags.InvalidLocation)
}

func TestLocationDetectorJump(t *testing.T) {
	d, store, clock := newLocationDetector()
	ctx := context.Background()
	now := clock.now.UnixMilli()

	// Prior position: Madrid, 10 seconds ago.
	last := domain.Location{Lat: 40.4168, Lon: -3.7038, Accuracy: 10, Timestamp: now - 10_000}
	raw, err := json.Marshal(last)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, ports.LastLocationKey("p1"), raw, time.Hour))

	// Barcelona, far beyond 1km within 10s.
	acc := newAcc()
	d.Analyze(ctx, &Input{
		ParticipantID: "p1",
		Evidence: domain.Evidence{Location: &domain.Location{
			Lat: 41.3874, Lon: 2.1686, Accuracy: 10, Timestamp: now,
		}},
	}, acc)
	assert.True(t, acc.Flags.InvalidLocation)
	assert.NotEmpty(t, acc.Details["locationJump"])

	// The new position replaces the old regardless of the flag.
	stored, err := store.Get(ctx, ports.LastLocationKey("p1"))
	require.NoError(t, err)
	var got domain.Location
	require.NoError(t, json.Unmarshal(stored, &got))
	assert.InDelta(t, 41.3874, got.Lat, 1e-9)
}

func TestLocationDetectorSlowMovementAllowed(t *testing.T) {
	d, store, clock := newLocationDetector()
	ctx := context.Background()
	now := clock.now.UnixMilli()

	last := domain.Location{Lat: 40.4168, Lon: -3.7038, Accuracy: 10, Timestamp: now - 3_600_000}
	raw, err := json.Marshal(last)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, ports.LastLocationKey("p1"), raw, time.Hour))

	acc := newAcc()
	d.Analyze(ctx, &Input{
		ParticipantID: "p1",
		Evidence: domain.Evidence{Location: &domain.Location{
			Lat: 41.3874, Lon: 2.1686, Accuracy: 10, Timestamp: now,
		}},
	}, acc)
	assert.False(t, acc.Flags.InvalidLocation)
}

func TestLocationDetectorBackwardsClockClamped(t *testing.T) {
	d, store, clock := newLocationDetector()
	ctx := context.Background()
	now := clock.now.UnixMilli()

	// Prior sample timestamped after the current one: delta clamps to zero
	// and the jump still counts.
	last := domain.Location{Lat: 40.4168, Lon: -3.7038, Accuracy: 10, Timestamp: now + 5_000}
	raw, err := json.Marshal(last)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, ports.LastLocationKey("p1"), raw, time.Hour))

	acc := newAcc()
	d.Analyze(ctx, &Input{
		ParticipantID: "p1",
		Evidence: domain.Evidence{Location: &domain.Location{
			Lat: 41.3874, Lon: 2.1686, Accuracy: 10, Timestamp: now,
		}},
	}, acc)
	assert.True(t, acc.Flags.InvalidLocation)
}

func TestWifiDetectorCounts(t *testing.T) {
	d := &WifiDetector{cfg: DefaultConfig()}

	many := make([]string, 21)
	for i := range many {
		many[i] = "ap"
	}

	tests := []struct {
		name       string
		networks   []string
		suspicious bool
	}{
		{"empty environment", nil, true},
		{"single network ok", []string{"CampusNet"}, false},
		{"at max ok", many[:20], false},
		{"over max", many, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := newAcc()
			d.Analyze(context.Background(), &Input{Evidence: domain.Evidence{WifiNetworks: tt.networks}}, acc)
			assert.Equal(t, tt.suspicious, acc.Flags.SuspiciousWifi)
		})
	}
}

func TestWifiDetectorBlacklist(t *testing.T) {
	d := &WifiDetector{cfg: DefaultConfig()}

	for _, ssid := range []string{"MOCK_WIFI", "mock_wifi", "guest-MOCK_WIFI-2", "my-test_ap"} {
		acc := newAcc()
		d.Analyze(context.Background(), &Input{Evidence: domain.Evidence{
			WifiNetworks: []string{"CampusNet", ssid},
		}}, acc)
		assert.True(t, acc.Flags.SuspiciousWifi, "ssid %q", ssid)
		assert.Equal(t, ssid, acc.Details["wifiBlacklist"])
	}

	acc := newAcc()
	d.Analyze(context.Background(), &Input{Evidence: domain.Evidence{
		WifiNetworks: []string{"CampusNet", "eduroam"},
	}}, acc)
	assert.False(t, acc.Flags.SuspiciousWifi)
}

func newDeviceDetector() (*DeviceBindingDetector, *evidence.MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	store := evidence.NewMemoryStore(clock)
	return &DeviceBindingDetector{cfg: DefaultConfig(), store: store, clock: clock}, store, clock
}

func TestDeviceBindingFirstUse(t *testing.T) {
	d, store, _ := newDeviceDetector()
	ctx := context.Background()

	acc := newAcc()
	d.Analyze(ctx, &Input{ParticipantID: "p1", DeviceID: "dev-1"}, acc)
	assert.False(t, acc.Flags.DuplicateDevice)

	members, err := store.SetMembers(ctx, ports.DeviceUsageKey("dev-1"))
	require.NoError(t, err)
	require.Len(t, members, 1)
	pid, _ := parseUsageMember(members[0])
	assert.Equal(t, "p1", pid)
}

func TestDeviceBindingSameParticipantRepeat(t *testing.T) {
	d, _, _ := newDeviceDetector()
	ctx := context.Background()

	acc := newAcc()
	d.Analyze(ctx, &Input{ParticipantID: "p1", DeviceID: "dev-1"}, acc)
	acc = newAcc()
	d.Analyze(ctx, &Input{ParticipantID: "p1", DeviceID: "dev-1"}, acc)
	assert.False(t, acc.Flags.DuplicateDevice)
}

func TestDeviceBindingOtherParticipant(t *testing.T) {
	d, _, _ := newDeviceDetector()
	ctx := context.Background()

	acc := newAcc()
	d.Analyze(ctx, &Input{ParticipantID: "p1", DeviceID: "dev-1"}, acc)

	acc = newAcc()
	d.Analyze(ctx, &Input{ParticipantID: "p2", DeviceID: "dev-1"}, acc)
	assert.True(t, acc.Flags.DuplicateDevice)
}

func TestDeviceBindingAttestation(t *testing.T) {
	d, _, _ := newDeviceDetector()

	for _, token := range []string{"rooted", "Jailbroken", "EMULATOR"} {
		acc := newAcc()
		d.Analyze(context.Background(), &Input{
			ParticipantID: "p1", DeviceID: "dev-1",
			Evidence: domain.Evidence{DeviceAttestation: []string{"safetynet:ok", token}},
		}, acc)
		assert.True(t, acc.Flags.RootedDevice, "token %q", token)
	}

	acc := newAcc()
	d.Analyze(context.Background(), &Input{
		ParticipantID: "p1", DeviceID: "dev-1",
		Evidence: domain.Evidence{DeviceAttestation: []string{"safetynet:ok"}},
	}, acc)
	assert.False(t, acc.Flags.RootedDevice)
}

func TestParseUsageMember(t *testing.T) {
	pid, ms := parseUsageMember("stu-1@1700000000000")
	assert.Equal(t, "stu-1", pid)
	assert.Equal(t, "1700000000000", ms)

	// Participant ids may themselves contain '@'.
	pid, ms = parseUsageMember("stu@campus@1700000000000")
	assert.Equal(t, "stu@campus", pid)
	assert.Equal(t, "1700000000000", ms)
}

func newBehaviorDetector() (*BehaviorDetector, *evidence.MemoryStore) {
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	store := evidence.NewMemoryStore(clock)
	return &BehaviorDetector{cfg: DefaultConfig(), store: store, clock: clock}, store
}

func TestBehaviorFirstSampleNoFlag(t *testing.T) {
	d, store := newBehaviorDetector()
	ctx := context.Background()

	acc := newAcc()
	d.Analyze(ctx, &Input{ParticipantID: "p1", LatencyMs: 3000}, acc)
	assert.False(t, acc.Flags.UnusualPattern)

	raw, err := store.Get(ctx, ports.BehaviorKey("p1"))
	require.NoError(t, err)
	var b domain.BehavioralBaseline
	require.NoError(t, json.Unmarshal(raw, &b))
	assert.Equal(t, 1, b.Samples)
	assert.Equal(t, 3000.0, b.MeanLatencyMs)
}

func TestBehaviorDeviationFlagged(t *testing.T) {
	d, _ := newBehaviorDetector()
	ctx := context.Background()

	acc := newAcc()
	d.Analyze(ctx, &Input{ParticipantID: "p1", LatencyMs: 3000}, acc)

	// Within 50% of the 3000ms mean: fine.
	acc = newAcc()
	d.Analyze(ctx, &Input{ParticipantID: "p1", LatencyMs: 4000}, acc)
	assert.False(t, acc.Flags.UnusualPattern)

	// More than 50% off the updated mean: flagged.
	acc = newAcc()
	d.Analyze(ctx, &Input{ParticipantID: "p1", LatencyMs: 400}, acc)
	assert.True(t, acc.Flags.UnusualPattern)
}

func TestBehaviorEWMAUpdate(t *testing.T) {
	d, store := newBehaviorDetector()
	ctx := context.Background()

	d.Analyze(ctx, &Input{ParticipantID: "p1", LatencyMs: 3000}, newAcc())
	d.Analyze(ctx, &Input{ParticipantID: "p1", LatencyMs: 4000}, newAcc())

	raw, err := store.Get(ctx, ports.BehaviorKey("p1"))
	require.NoError(t, err)
	var b domain.BehavioralBaseline
	require.NoError(t, json.Unmarshal(raw, &b))

	// mean = 3000 + 0.2*(4000-3000)
	assert.InDelta(t, 3200.0, b.MeanLatencyMs, 1e-9)
	assert.Equal(t, 2, b.Samples)
	assert.Greater(t, b.VarianceMs, 0.0)
}

func TestBehaviorExpiredDoesNotLearn(t *testing.T) {
	d, store := newBehaviorDetector()
	ctx := context.Background()

	d.Analyze(ctx, &Input{ParticipantID: "p1", LatencyMs: 3000}, newAcc())
	d.Analyze(ctx, &Input{ParticipantID: "p1", LatencyMs: 60000, Expired: true}, newAcc())

	raw, err := store.Get(ctx, ports.BehaviorKey("p1"))
	require.NoError(t, err)
	var b domain.BehavioralBaseline
	require.NoError(t, json.Unmarshal(raw, &b))
	assert.Equal(t, 1, b.Samples)
	assert.Equal(t, 3000.0, b.MeanLatencyMs)
}
