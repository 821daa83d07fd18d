package request

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/wsaa/internal/clock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 10, 6, 33, 20, 500_000_000, time.UTC)

func TestBuild_Document(t *testing.T) {
	art := time.FixedZone("ART", -3*3600)
	b := NewBuilder(WithClock(clock.NewFake(fixedNow)), WithLocation(art))

	req, err := b.Build("wsfe", 12*time.Hour)
	require.NoError(t, err)

	require.Equal(t, "wsfe", req.ServiceID)
	require.Equal(t, uint32(fixedNow.Unix()), req.UniqueID)
	require.True(t, req.GenerationTime.Before(req.ExpirationTime))
	require.Equal(t, 12*time.Hour, req.ExpirationTime.Sub(req.GenerationTime))

	doc, err := req.Marshal()
	require.NoError(t, err)

	want := `<?xml version="1.0" encoding="UTF-8"?>
<loginTicketRequest version="1.0">
  <header>
    <uniqueId>1718001200</uniqueId>
    <generationTime>2024-06-10T03:33:20</generationTime>
    <expirationTime>2024-06-10T15:33:20</expirationTime>
  </header>
  <service>wsfe</service>
</loginTicketRequest>`
	require.Equal(t, want, string(doc))
}

func TestBuild_ZonedLayout(t *testing.T) {
	art := time.FixedZone("ART", -3*3600)
	b := NewBuilder(WithClock(clock.NewFake(fixedNow)), WithLocation(art), WithLayout(LayoutZoned))

	req, err := b.Build("wsfe", time.Hour)
	require.NoError(t, err)
	doc, err := req.Marshal()
	require.NoError(t, err)

	require.Contains(t, string(doc), "<generationTime>2024-06-10T03:33:20-03:00</generationTime>")
	require.Contains(t, string(doc), "<expirationTime>2024-06-10T04:33:20-03:00</expirationTime>")
}

func TestBuild_DeterministicUnderFixedClock(t *testing.T) {
	c := clock.NewFake(fixedNow)
	a, err := NewBuilder(WithClock(c), WithLocation(time.UTC)).Build("wsfe", time.Hour)
	require.NoError(t, err)
	b, err := NewBuilder(WithClock(c), WithLocation(time.UTC)).Build("wsfe", time.Hour)
	require.NoError(t, err)

	da, _ := a.Marshal()
	db, _ := b.Marshal()
	require.Equal(t, string(da), string(db))
}

func TestBuild_UniqueIDNeverDecreases(t *testing.T) {
	c := clock.NewFake(fixedNow)
	b := NewBuilder(WithClock(c), WithLocation(time.UTC))

	first, err := b.Build("wsfe", time.Hour)
	require.NoError(t, err)

	// NTP corrige el reloj hacia atrás
	c.Advance(-30 * time.Second)
	second, err := b.Build("wsfe", time.Hour)
	require.NoError(t, err)
	require.GreaterOrEqual(t, second.UniqueID, first.UniqueID)

	c.Advance(time.Minute)
	third, err := b.Build("wsfe", time.Hour)
	require.NoError(t, err)
	require.Greater(t, third.UniqueID, first.UniqueID)
}

func TestBuild_ConcurrentUniqueIDsMonotonic(t *testing.T) {
	c := clock.NewFake(fixedNow)
	b := NewBuilder(WithClock(c), WithLocation(time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
			_, err := b.Build("wsfe", time.Hour)
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	last, err := b.Build("wsfe", time.Hour)
	require.NoError(t, err)
	require.Equal(t, uint32(fixedNow.Add(32*time.Second).Unix()), last.UniqueID)
}

func TestBuild_Backdate(t *testing.T) {
	b := NewBuilder(WithClock(clock.NewFake(fixedNow)), WithLocation(time.UTC), WithBackdate(10*time.Minute))
	req, err := b.Build("wsfe", time.Hour)
	require.NoError(t, err)

	require.True(t, req.GenerationTime.Equal(fixedNow.Truncate(time.Second).Add(-10*time.Minute)))
	require.Equal(t, uint32(fixedNow.Unix()), req.UniqueID)
}

func TestBuild_InvalidInput(t *testing.T) {
	b := NewBuilder(WithClock(clock.NewFake(fixedNow)))

	_, err := b.Build("  ", time.Hour)
	require.ErrorIs(t, err, ErrEmptyService)

	_, err = b.Build("wsfe", 0)
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestMarshal_EscapesService(t *testing.T) {
	b := NewBuilder(WithClock(clock.NewFake(fixedNow)), WithLocation(time.UTC))
	req, err := b.Build("ws<fe>&", time.Hour)
	require.NoError(t, err)
	doc, err := req.Marshal()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(doc), "<service>ws&lt;fe&gt;&amp;</service>"))
}

func TestParseLayout(t *testing.T) {
	for in, want := range map[string]string{
		"":          LayoutLocal,
		"local":     LayoutLocal,
		"ZONED":     LayoutZoned,
		LayoutZoned: LayoutZoned,
	} {
		got, err := ParseLayout(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseLayout("rfc1123")
	require.ErrorIs(t, err, ErrUnknownLayout)
}
