package broker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/wsaa/internal/clock"
	"github.com/dropDatabas3/wsaa/internal/ticketstore"
	"github.com/dropDatabas3/wsaa/internal/wsaa"
	"github.com/dropDatabas3/wsaa/internal/wsaa/request"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 10, 6, 33, 20, 0, time.UTC)

// fakeSigner devuelve el documento tal cual como "CMS".
type fakeSigner struct {
	calls atomic.Int32
	err   error
}

func (s *fakeSigner) Sign(_ context.Context, doc []byte) ([]byte, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte("cms:"), doc...), nil
}

// fakeAuthority emite tickets con la respuesta que arme fn.
type fakeAuthority struct {
	calls atomic.Int32
	fn    func(ctx context.Context, n int32) (*wsaa.AccessTicket, error)
}

func (a *fakeAuthority) LoginCMS(ctx context.Context, _ []byte) (*wsaa.AccessTicket, error) {
	n := a.calls.Add(1)
	return a.fn(ctx, n)
}

func issue(clk clock.Clock, life time.Duration, token string) *wsaa.AccessTicket {
	now := clk.Now()
	return &wsaa.AccessTicket{Token: token, Sign: "S1", GeneratedAt: now, ExpiresAt: now.Add(life)}
}

// recordingStore envuelve un store real y permite inyectar fallas.
type recordingStore struct {
	ticketstore.Store
	mu      sync.Mutex
	sets    int
	lastTTL time.Duration
	getErr  error
	setErr  error
}

func (s *recordingStore) Get(ctx context.Context, key string) (*wsaa.AccessTicket, bool, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return s.Store.Get(ctx, key)
}

func (s *recordingStore) Set(ctx context.Context, key string, t *wsaa.AccessTicket, ttl time.Duration) error {
	s.mu.Lock()
	s.sets++
	s.lastTTL = ttl
	err := s.setErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, key, t, ttl)
}

type fixture struct {
	clk   *clock.Fake
	store *recordingStore
	sign  *fakeSigner
	auth  *fakeAuthority
	b     *Broker
}

func newFixture(t *testing.T, cfg Config, fn func(ctx context.Context, n int32) (*wsaa.AccessTicket, error)) *fixture {
	t.Helper()
	f := &fixture{
		clk:   clock.NewFake(t0),
		store: &recordingStore{Store: ticketstore.NewMemory()},
		sign:  &fakeSigner{},
		auth:  &fakeAuthority{fn: fn},
	}
	b, err := New(cfg, Deps{
		Store:     f.store,
		Builder:   request.NewBuilder(request.WithClock(f.clk)),
		Signer:    f.sign,
		Authority: f.auth,
		Clock:     f.clk,
	})
	require.NoError(t, err)
	f.b = b
	return f
}

func TestAuthenticate_EndToEnd(t *testing.T) {
	ctx := context.Background()
	var f *fixture
	f = newFixture(t, Config{ValidityWindow: 12 * time.Hour}, func(_ context.Context, n int32) (*wsaa.AccessTicket, error) {
		if n == 1 {
			return issue(f.clk, 600*time.Second, "T1"), nil
		}
		return issue(f.clk, 600*time.Second, "T2"), nil
	})

	got, err := f.b.Authenticate(ctx, "wsfe")
	require.NoError(t, err)
	require.Equal(t, "T1", got.Token)
	require.Equal(t, "S1", got.Sign)
	require.True(t, got.ExpiresAt.Equal(t0.Add(600*time.Second)))
	require.Equal(t, 600*time.Second, f.store.lastTTL)
	require.EqualValues(t, 1, f.auth.calls.Load())

	cached, ok, err := f.store.Get(ctx, "wsfe")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "T1", cached.Token)

	f.clk.Advance(599 * time.Second)
	got, err = f.b.Authenticate(ctx, "wsfe")
	require.NoError(t, err)
	require.Equal(t, "T1", got.Token)
	require.EqualValues(t, 1, f.auth.calls.Load())

	f.clk.Advance(time.Second)
	got, err = f.b.Authenticate(ctx, "wsfe")
	require.NoError(t, err)
	require.Equal(t, "T2", got.Token)
	require.EqualValues(t, 2, f.auth.calls.Load())
	require.EqualValues(t, 2, f.sign.calls.Load())

	got, err = f.b.Authenticate(ctx, "wsfe")
	require.NoError(t, err)
	require.Equal(t, "T2", got.Token)
	require.EqualValues(t, 2, f.auth.calls.Load())
}

func TestAuthenticate_ConcurrentCallersShareOneRenewal(t *testing.T) {
	const callers = 50
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var f *fixture
	f = newFixture(t, Config{}, func(_ context.Context, _ int32) (*wsaa.AccessTicket, error) {
		once.Do(func() { close(entered) })
		<-release
		return issue(f.clk, 12*time.Hour, "T1"), nil
	})

	var wg sync.WaitGroup
	results := make(chan *wsaa.AccessTicket, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, err := f.b.Authenticate(context.Background(), "wsfe")
			if err != nil {
				errs <- err
				return
			}
			results <- tk
		}()
	}

	<-entered
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	n := 0
	for tk := range results {
		require.Equal(t, "T1", tk.Token)
		n++
	}
	require.Equal(t, callers, n)
	require.EqualValues(t, 1, f.auth.calls.Load())
	require.EqualValues(t, 1, f.sign.calls.Load())
	require.Equal(t, 1, f.store.sets)
}

func TestAuthenticate_TransportFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	transportErr := wsaa.E(wsaa.ErrTransport, "client.LoginCMS", errors.New("connection refused"))
	f := newFixture(t, Config{}, func(context.Context, int32) (*wsaa.AccessTicket, error) {
		return nil, transportErr
	})

	// Ticket vencido para el broker pero todavía presente en el store.
	stale := &wsaa.AccessTicket{Token: "OLD", Sign: "S0", ExpiresAt: t0.Add(-time.Second)}
	require.NoError(t, f.store.Store.Set(ctx, "wsfe", stale, time.Hour))

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.b.Authenticate(ctx, "wsfe")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.ErrorIs(t, err, wsaa.ErrTransport)
		require.NotErrorIs(t, err, wsaa.ErrCacheUnavailable)
	}

	require.Equal(t, 0, f.store.sets)
	got, ok, err := f.store.Get(ctx, "wsfe")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "OLD", got.Token)
}

func TestAuthenticate_NeverReturnsExpired(t *testing.T) {
	ctx := context.Background()
	var f *fixture
	f = newFixture(t, Config{}, func(context.Context, int32) (*wsaa.AccessTicket, error) {
		return issue(f.clk, time.Hour, "NEW"), nil
	})
	require.NoError(t, f.store.Store.Set(ctx, "wsfe", &wsaa.AccessTicket{Token: "EDGE", ExpiresAt: t0}, time.Hour))

	got, err := f.b.Authenticate(ctx, "wsfe")
	require.NoError(t, err)
	require.Equal(t, "NEW", got.Token)
	require.True(t, got.ValidAt(f.clk.Now()))
}

func TestAuthenticate_RenewBefore(t *testing.T) {
	ctx := context.Background()
	var f *fixture
	f = newFixture(t, Config{RenewBefore: 5 * time.Minute}, func(context.Context, int32) (*wsaa.AccessTicket, error) {
		return issue(f.clk, 10*time.Minute, "T"), nil
	})

	_, err := f.b.Authenticate(ctx, "wsfe")
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, f.store.lastTTL)

	f.clk.Advance(4*time.Minute + 59*time.Second)
	_, err = f.b.Authenticate(ctx, "wsfe")
	require.NoError(t, err)
	require.EqualValues(t, 1, f.auth.calls.Load())

	f.clk.Advance(time.Second)
	_, err = f.b.Authenticate(ctx, "wsfe")
	require.NoError(t, err)
	require.EqualValues(t, 2, f.auth.calls.Load())
}

func TestAuthenticate_CacheTTLCapsDerivedTTL(t *testing.T) {
	var f *fixture
	f = newFixture(t, Config{CacheTTL: time.Hour}, func(context.Context, int32) (*wsaa.AccessTicket, error) {
		return issue(f.clk, 12*time.Hour, "T"), nil
	})
	_, err := f.b.Authenticate(context.Background(), "wsfe")
	require.NoError(t, err)
	require.Equal(t, time.Hour, f.store.lastTTL)
}

func TestAuthenticate_ExpiredTicketFromAuthorityIsProtocolError(t *testing.T) {
	cases := map[string]Config{
		"already expired":         {},
		"shorter than the margin": {RenewBefore: time.Hour},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			var f *fixture
			f = newFixture(t, cfg, func(context.Context, int32) (*wsaa.AccessTicket, error) {
				if cfg.RenewBefore > 0 {
					return issue(f.clk, 10*time.Minute, "T"), nil
				}
				return issue(f.clk, 0, "T"), nil
			})
			_, err := f.b.Authenticate(context.Background(), "wsfe")
			require.ErrorIs(t, err, wsaa.ErrProtocol)
			require.Equal(t, 0, f.store.sets)
		})
	}
}

func TestAuthenticate_CacheUnavailable(t *testing.T) {
	ctx := context.Background()
	var f *fixture
	f = newFixture(t, Config{}, func(context.Context, int32) (*wsaa.AccessTicket, error) {
		return issue(f.clk, time.Hour, "T"), nil
	})

	f.store.getErr = errors.New("dial tcp: connection refused")
	_, err := f.b.Authenticate(ctx, "wsfe")
	require.ErrorIs(t, err, wsaa.ErrCacheUnavailable)
	require.EqualValues(t, 0, f.auth.calls.Load())

	f.store.getErr = nil
	f.store.setErr = errors.New("READONLY")
	_, err = f.b.Authenticate(ctx, "wsfe")
	require.ErrorIs(t, err, wsaa.ErrCacheUnavailable)
	require.EqualValues(t, 1, f.auth.calls.Load())
}

func TestAuthenticate_SigningErrorPropagates(t *testing.T) {
	f := newFixture(t, Config{}, func(context.Context, int32) (*wsaa.AccessTicket, error) {
		return nil, errors.New("authority must not be called when signing fails")
	})
	f.sign.err = wsaa.E(wsaa.ErrKeystoreUnreadable, "signer.Sign", errors.New("open wsaa.p12: no such file"))

	_, err := f.b.Authenticate(context.Background(), "wsfe")
	require.ErrorIs(t, err, wsaa.ErrSigning)
	require.ErrorIs(t, err, wsaa.ErrKeystoreUnreadable)
	require.EqualValues(t, 0, f.auth.calls.Load())
}

func TestInvalidate_ForcesRenewal(t *testing.T) {
	ctx := context.Background()
	var f *fixture
	f = newFixture(t, Config{}, func(context.Context, int32) (*wsaa.AccessTicket, error) {
		return issue(f.clk, time.Hour, "T"), nil
	})

	_, err := f.b.Authenticate(ctx, "wsfe")
	require.NoError(t, err)
	require.NoError(t, f.b.Invalidate(ctx, "wsfe"))
	_, err = f.b.Authenticate(ctx, "wsfe")
	require.NoError(t, err)
	require.EqualValues(t, 2, f.auth.calls.Load())

	require.ErrorIs(t, f.b.Invalidate(ctx, " "), ErrEmptyService)
}

func TestAuthenticate_CallerCancelDoesNotAbortRenewal(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	var f *fixture
	f = newFixture(t, Config{}, func(ctx context.Context, _ int32) (*wsaa.AccessTicket, error) {
		defer close(done)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, wsaa.E(wsaa.ErrTransport, "test", ctx.Err())
		}
		return issue(f.clk, time.Hour, "T1"), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := f.b.Authenticate(ctx, "wsfe")
		errc <- err
	}()

	require.Eventually(t, func() bool { return f.auth.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	<-done
	require.Eventually(t, func() bool {
		_, ok, _ := f.store.Get(context.Background(), "wsfe")
		return ok
	}, time.Second, 5*time.Millisecond)

	got, err := f.b.Authenticate(context.Background(), "wsfe")
	require.NoError(t, err)
	require.Equal(t, "T1", got.Token)
	require.EqualValues(t, 1, f.auth.calls.Load())
}

func TestAuthenticate_RenewTimeoutReleasesSlot(t *testing.T) {
	var f *fixture
	f = newFixture(t, Config{RenewTimeout: 50 * time.Millisecond}, func(ctx context.Context, n int32) (*wsaa.AccessTicket, error) {
		if n == 1 {
			<-ctx.Done()
			return nil, wsaa.E(wsaa.ErrTransport, "test", ctx.Err())
		}
		return issue(f.clk, time.Hour, "T2"), nil
	})

	_, err := f.b.Authenticate(context.Background(), "wsfe")
	require.ErrorIs(t, err, wsaa.ErrTransport)
	require.True(t, wsaa.IsTimeout(err))

	got, err := f.b.Authenticate(context.Background(), "wsfe")
	require.NoError(t, err)
	require.Equal(t, "T2", got.Token)
	require.EqualValues(t, 2, f.auth.calls.Load())
}

// slowStore demora los Get a partir del segundo: el primero es el miss del
// llamador y el segundo el double-check dentro de la renovación.
type slowStore struct {
	ticketstore.Store
	gets  atomic.Int32
	delay time.Duration
}

func (s *slowStore) Get(ctx context.Context, key string) (*wsaa.AccessTicket, bool, error) {
	if s.gets.Add(1) >= 2 {
		time.Sleep(s.delay)
	}
	return s.Store.Get(ctx, key)
}

func TestAuthenticate_TimeoutBeforeSigningIsTransport(t *testing.T) {
	clk := clock.NewFake(t0)
	sign := &fakeSigner{}
	auth := &fakeAuthority{fn: func(context.Context, int32) (*wsaa.AccessTicket, error) {
		return issue(clk, time.Hour, "T1"), nil
	}}
	b, err := New(Config{RenewTimeout: 20 * time.Millisecond}, Deps{
		Store:     &slowStore{Store: ticketstore.NewMemory(), delay: 80 * time.Millisecond},
		Builder:   request.NewBuilder(request.WithClock(clk)),
		Signer:    sign,
		Authority: auth,
		Clock:     clk,
	})
	require.NoError(t, err)

	_, err = b.Authenticate(context.Background(), "wsfe")
	require.Error(t, err)
	require.ErrorIs(t, err, wsaa.ErrTransport)
	require.NotErrorIs(t, err, wsaa.ErrSigning)
	require.True(t, wsaa.IsTimeout(err))
	require.Equal(t, "transport", resultLabel(err))
	require.Zero(t, sign.calls.Load())
	require.Zero(t, auth.calls.Load())
}

// ctxSigner respeta el contexto como el firmante real.
type ctxSigner struct{}

func (ctxSigner) Sign(ctx context.Context, doc []byte) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAuthenticate_SignerDeadlineIsTransport(t *testing.T) {
	clk := clock.NewFake(t0)
	b, err := New(Config{RenewTimeout: 20 * time.Millisecond}, Deps{
		Store:   ticketstore.NewMemory(),
		Builder: request.NewBuilder(request.WithClock(clk)),
		Signer:  ctxSigner{},
		Authority: &fakeAuthority{fn: func(context.Context, int32) (*wsaa.AccessTicket, error) {
			return issue(clk, time.Hour, "T1"), nil
		}},
		Clock: clk,
	})
	require.NoError(t, err)

	_, err = b.Authenticate(context.Background(), "wsfe")
	require.ErrorIs(t, err, wsaa.ErrTransport)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, "transport", resultLabel(err))
}

func TestAuthenticate_ReturnsCopies(t *testing.T) {
	var f *fixture
	f = newFixture(t, Config{}, func(context.Context, int32) (*wsaa.AccessTicket, error) {
		return issue(f.clk, time.Hour, "T1"), nil
	})
	got, err := f.b.Authenticate(context.Background(), "wsfe")
	require.NoError(t, err)
	got.Token = "mutated"

	again, err := f.b.Authenticate(context.Background(), "wsfe")
	require.NoError(t, err)
	require.Equal(t, "T1", again.Token)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)

	f := newFixture(t, Config{}, nil)
	require.Equal(t, DefaultValidityWindow, f.b.cfg.ValidityWindow)
	require.Equal(t, DefaultRenewTimeout, f.b.cfg.RenewTimeout)

	_, err = f.b.Authenticate(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyService)
}

func TestResultLabel(t *testing.T) {
	require.Equal(t, "ok", resultLabel(nil))
	require.Equal(t, "signing", resultLabel(wsaa.E(wsaa.ErrAliasNotFound, "x", nil)))
	require.Equal(t, "transport", resultLabel(wsaa.E(wsaa.ErrTransport, "x", nil)))
	require.Equal(t, "protocol", resultLabel(wsaa.E(wsaa.ErrProtocol, "x", nil)))
	require.Equal(t, "cache", resultLabel(wsaa.E(wsaa.ErrCacheUnavailable, "x", nil)))
	require.Equal(t, "error", resultLabel(errors.New("boom")))
}
