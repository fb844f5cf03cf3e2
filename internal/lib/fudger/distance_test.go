package fudger

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/locfudge/internal/lib/fix"
	"github.com/dpup/locfudge/internal/lib/geo"
)

func TestDistanceFudger_TenKilometersEast(t *testing.T) {
	clock := newFakeClock()
	d := NewDistanceFudger(10, WithClock(clock), WithRand(script(0.25)))

	coarse := d.Obfuscate(fix.Fix{Latitude: 0, Longitude: 0})

	assert.InDelta(t, 0.0, coarse.Latitude, 1e-9)
	assert.InDelta(t, 0.0900901, coarse.Longitude, 1e-6)
	assert.GreaterOrEqual(t, coarse.Accuracy, 10000.0)
}

func TestDistanceFudger_CoercesNonPositiveDistance(t *testing.T) {
	for _, km := range []int{-5, 0} {
		clock := newFakeClock()
		coerced := NewDistanceFudger(km, WithClock(clock), WithRand(script(0.1)))
		reference := NewDistanceFudger(10, WithClock(clock), WithRand(script(0.1)))

		assert.Equal(t, DefaultDistanceKm, coerced.DistanceKm())

		fine := fineFix(38.1327, -120.4606)
		assert.Equal(t, reference.Obfuscate(fine), coerced.Obfuscate(fine), "distance %d", km)
	}
}

func TestDistanceFudger_StripsMetadataWithoutMutatingInput(t *testing.T) {
	d := NewDistanceFudger(5)
	fine := fineFix(38.1327, -120.4606)

	coarse := d.Obfuscate(fine)
	assertValidCoarse(t, coarse)
	assert.Equal(t, fine.Provider, coarse.Provider)
	assert.Equal(t, fine.Time, coarse.Time)

	require.NotNil(t, fine.Bearing)
	assert.Equal(t, 45.0, *fine.Bearing)
	assert.Equal(t, 11, fine.Extras["satellites"])
	assert.Equal(t, 38.1327, fine.Latitude)

	// Missing optional fields are fine too
	bare := d.Obfuscate(fix.Fix{Latitude: 1, Longitude: 1})
	assertValidCoarse(t, bare)
}

func TestDistanceFudger_AccuracyNeverTighterThanOffset(t *testing.T) {
	clock := newFakeClock()
	d := NewDistanceFudger(10, WithClock(clock), WithRand(script(0.3)))

	loose := fineFix(10, 10)
	loose.Accuracy = 50_000
	assert.Equal(t, 50_000.0, d.Obfuscate(loose).Accuracy)

	tight := fineFix(10, 10)
	tight.Accuracy = 3
	assert.Equal(t, 10_000.0, d.Obfuscate(tight).Accuracy)

	broken := fineFix(10, 10)
	broken.Accuracy = math.NaN()
	assert.Equal(t, 10_000.0, d.Obfuscate(broken).Accuracy)

	// After a refresh the factor moves the offset, accuracy follows it
	clock.Advance(DefaultDistanceRefreshInterval)
	refreshed := d.Obfuscate(tight)
	moved, err := geo.PointToPoint(tight.Point(), refreshed.Point())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, refreshed.Accuracy, 9_500.0)
	assert.LessOrEqual(t, refreshed.Accuracy, 10_500.0)
	assert.InDelta(t, refreshed.Accuracy, moved, refreshed.Accuracy*0.01)
}

func TestDistanceFudger_StableWithinWindow(t *testing.T) {
	clock := newFakeClock()
	d := NewDistanceFudger(10, WithClock(clock))
	fine := fineFix(38.1327, -120.4606)

	first := d.Obfuscate(fine)
	clock.Advance(DefaultDistanceRefreshInterval - time.Nanosecond)
	second := d.Obfuscate(fine)

	assert.Equal(t, first, second, "same window must apply the identical vector")
}

func TestDistanceFudger_RefreshWalksDirection(t *testing.T) {
	clock := newFakeClock()
	// seed: direction 90; refresh: factor 1.025, direction +2.4
	d := NewDistanceFudger(10, WithClock(clock), WithRand(script(0.25, 0.75, 0.9)))
	fine := fix.Fix{Latitude: 0, Longitude: 0}

	before := d.Obfuscate(fine)
	clock.Advance(90 * time.Second)
	after := d.Obfuscate(fine)

	assert.NotEqual(t, before, after)
	assert.Equal(t, clock.Now().Add(DefaultDistanceRefreshInterval), d.state.sched.next)

	angle := 92.4 * math.Pi / 180
	want := geo.Displace(fine.Point(), 10_250*math.Cos(angle), 10_250*math.Sin(angle))
	assert.InDelta(t, want.Latitude, after.Latitude, 1e-9)
	assert.InDelta(t, want.Longitude, after.Longitude, 1e-9)
	assert.InDelta(t, 10_250.0, after.Accuracy, 1e-6)

	// Next refresh is measured from the refresh time, not the original expiry
	clock.Advance(DefaultDistanceRefreshInterval - time.Second)
	assert.Equal(t, after, d.Obfuscate(fine))
	clock.Advance(time.Second)
	assert.NotEqual(t, after, d.Obfuscate(fine))
}

func TestDistanceFudger_RefreshChangesVectorAcrossTrials(t *testing.T) {
	fine := fineFix(47.6062, -122.3321)
	for i := 0; i < 20; i++ {
		clock := newFakeClock()
		d := NewDistanceFudger(10, WithClock(clock))

		before := d.Obfuscate(fine)
		clock.Advance(DefaultDistanceRefreshInterval)
		after := d.Obfuscate(fine)
		assert.NotEqual(t, before.Point(), after.Point(), "trial %d", i)

		// The walk is small: consecutive windows stay within a few degrees
		moved, err := geo.PointToPoint(before.Point(), after.Point())
		require.NoError(t, err)
		assert.Less(t, moved, 1_100.0, "trial %d", i)
	}
}

func TestDistanceFudger_BatchSharesOneVector(t *testing.T) {
	clock := newFakeClock()
	d := NewDistanceFudger(10, WithClock(clock), WithRand(script(0.125, 0.2, 0.6)))

	batch := fix.Batch{fineFix(10, 10), fineFix(20, 20), fineFix(30, 30)}
	clock.Advance(DefaultDistanceRefreshInterval)

	out := d.ObfuscateBatch(batch)
	require.Len(t, out, 3)

	for i := range batch {
		assert.Equal(t, d.Obfuscate(batch[i]), out[i], "element %d", i)
		assertValidCoarse(t, out[i])
	}
	assert.Less(t, out[0].Latitude, out[1].Latitude)
	assert.Less(t, out[1].Latitude, out[2].Latitude)
	assert.Equal(t, out[0].Accuracy, out[2].Accuracy)
	assert.Nil(t, d.ObfuscateBatch(nil))
}

func TestDistanceFudger_PoleSafety(t *testing.T) {
	for _, dir := range []float64{0, 0.125, 0.25, 0.5, 0.75} {
		for _, lat := range []float64{89.9995, 90, -89.9995, -90} {
			d := NewDistanceFudger(10, WithRand(script(dir)))
			coarse := d.Obfuscate(fineFix(lat, 45))
			assertValidCoarse(t, coarse)
		}
	}
}

func TestDistanceFudger_SetDistanceReseeds(t *testing.T) {
	clock := newFakeClock()
	d := NewDistanceFudger(10, WithClock(clock), WithRand(script(0.25, 0.5)))
	fine := fix.Fix{Latitude: 0, Longitude: 0}

	east := d.Obfuscate(fine)
	assert.InDelta(t, 0.0900901, east.Longitude, 1e-6)

	clock.Advance(10 * time.Second)
	d.SetDistanceKm(20)
	assert.Equal(t, 20, d.DistanceKm())
	assert.Equal(t, clock.Now().Add(DefaultDistanceRefreshInterval), d.state.sched.next)

	south := d.Obfuscate(fine)
	assert.InDelta(t, -20_000.0/geo.MetersPerDegreeAtEquator, south.Latitude, 1e-9)
	assert.InDelta(t, 0.0, south.Longitude, 1e-9)
	assert.Equal(t, 20_000.0, south.Accuracy)

	d.SetDistanceKm(-1)
	assert.Equal(t, DefaultDistanceKm, d.DistanceKm())
}

func TestDistanceFudger_SharedOffsetState(t *testing.T) {
	clock := newFakeClock()
	shared := NewOffsetState(time.Minute, script(0.25, 0.5))

	a := NewDistanceFudger(10, WithClock(clock), WithOffsetState(shared))
	b := NewDistanceFudger(20, WithClock(clock), WithOffsetState(shared))
	fine := fix.Fix{Latitude: 0, Longitude: 0}

	// Same direction, each with its own distance
	assert.InDelta(t, 0.0900901, a.Obfuscate(fine).Longitude, 1e-6)
	assert.InDelta(t, 0.1801802, b.Obfuscate(fine).Longitude, 1e-6)

	// Reconfiguring one reseeds the vector for both
	a.SetDistanceKm(10)
	assert.Less(t, b.Obfuscate(fine).Latitude, -0.17)
}

func TestDistanceFudger_Scope(t *testing.T) {
	g1 := NewDistanceFudger(10, WithScope(ScopeGlobal))
	g2 := NewDistanceFudger(50, WithScope(ScopeGlobal))
	assert.Same(t, g1.state, g2.state)
	assert.Same(t, GlobalOffsetState(), g1.state)

	i1 := NewDistanceFudger(10)
	i2 := NewDistanceFudger(10)
	assert.NotSame(t, i1.state, i2.state)

	scope, err := ParseScope(" Global ")
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, scope)
	scope, err = ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeInstance, scope)
	_, err = ParseScope("per-app")
	assert.Error(t, err)
}

func TestDistanceFudger_GlobalScopeRefreshInterval(t *testing.T) {
	t.Cleanup(func() {
		GlobalOffsetState().Configure(time.Now(), DefaultDistanceRefreshInterval, NewSecureRand())
	})

	clock := newFakeClock()
	opts := []Option{
		WithClock(clock),
		WithScope(ScopeGlobal),
		WithRefreshInterval(10 * time.Second),
		WithRand(constRand(0.9)),
	}
	a := NewDistanceFudger(10, opts...)
	b := NewDistanceFudger(10, opts...)
	assert.Equal(t, 10*time.Second, GlobalOffsetState().Interval())

	fine := fineFix(38.1327, -120.4606)
	before := a.Obfuscate(fine)

	clock.Advance(9 * time.Second)
	assert.Equal(t, before, a.Obfuscate(fine), "inside the window")

	clock.Advance(6 * time.Second)
	after := a.Obfuscate(fine)
	assert.NotEqual(t, before, after, "10s window must have refreshed")
	assert.InDelta(t, 10400, after.Accuracy, 1e-6)
	assert.Equal(t, after, b.Obfuscate(fine), "global fudgers move in lockstep")
}

func TestOffsetState_Configure(t *testing.T) {
	clock := newFakeClock()
	s := NewOffsetState(time.Hour, constRand(0.25))
	s.snapshot(clock.Now())

	// Omitted settings are kept
	s.Configure(clock.Now(), 0, nil)
	assert.Equal(t, time.Hour, s.Interval())

	// A shorter interval pulls the pending expiry in
	s.Configure(clock.Now(), time.Minute, nil)
	assert.Equal(t, time.Minute, s.Interval())
	clock.Advance(time.Minute)
	snap := s.snapshot(clock.Now())
	assert.True(t, snap.refreshed)
	assert.Equal(t, clock.Now().Add(time.Minute), snap.expiresAt)
}

func TestDistanceFudger_Memo(t *testing.T) {
	clock := newFakeClock()
	d := NewDistanceFudger(10, WithClock(clock), WithMemo(8))
	fine := fineFix(38.1327, -120.4606)

	first := d.Obfuscate(fine)
	assert.Equal(t, 1, d.memo.len())

	// Same content, different metadata and identity: memo hit
	twin := fine
	twin.Bearing = nil
	twin.Extras = map[string]any{"other": 1}
	assert.Equal(t, first, d.Obfuscate(twin))
	assert.Equal(t, 1, d.memo.len())

	clock.Advance(DefaultDistanceRefreshInterval)
	refreshed := d.Obfuscate(fine)
	assert.NotEqual(t, first, refreshed)
	assert.Equal(t, 1, d.memo.len(), "refresh must reset the memo")

	d.SetDistanceKm(25)
	assert.Equal(t, 0, d.memo.len())
}

func TestDistanceFudger_ConcurrentCallsSeeConsistentVectors(t *testing.T) {
	clock := newFakeClock()
	d := NewDistanceFudger(10, WithClock(clock), WithRefreshInterval(time.Second))
	fine := fix.Fix{Latitude: 10, Longitude: 20}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				coarse := d.Obfuscate(fine)
				moved, err := geo.PointToPoint(fine.Point(), coarse.Point())
				if err != nil || math.Abs(moved/coarse.Accuracy-1) > 0.02 {
					select {
					case errs <- "offset and accuracy disagree":
					default:
					}
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			clock.Advance(500 * time.Millisecond)
			if i%10 == 0 {
				d.SetDistanceKm(10 + i)
			}
		}
	}()
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}

func TestNew(t *testing.T) {
	o, err := New(KindDistance, 10.2)
	require.NoError(t, err)
	require.IsType(t, &DistanceFudger{}, o)
	assert.Equal(t, 11, o.(*DistanceFudger).DistanceKm())

	o, err = New(KindDistance, -3)
	require.NoError(t, err)
	assert.Equal(t, DefaultDistanceKm, o.(*DistanceFudger).DistanceKm())

	o, err = New(KindGeoDP, 50)
	require.NoError(t, err)
	assert.Equal(t, MinAccuracyMeters, o.(*GeoDPFudger).Accuracy())

	_, err = New("grid", 1)
	assert.Error(t, err)

	kind, err := ParseKind("GeoDP")
	require.NoError(t, err)
	assert.Equal(t, KindGeoDP, kind)
	_, err = ParseKind("grid")
	assert.Error(t, err)
}
