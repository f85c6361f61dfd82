package metrics

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jom-io/gorig-telemetry/src/chart"
	"github.com/jom-io/gorig-telemetry/src/config"
	"github.com/jom-io/gorig-telemetry/src/errtrack"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"
)

const testToken = "0123456789abcdefghijklmnopqrstuv"

type submission struct {
	header http.Header
	body   string
}

type collector struct {
	*httptest.Server
	mu          sync.Mutex
	status      int
	submissions []submission
}

func newCollector(t *testing.T, status int) *collector {
	c := &collector{status: status}
	c.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zr, err := gzip.NewReader(r.Body)
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(zr)
		assert.NoError(t, err)

		c.mu.Lock()
		c.submissions = append(c.submissions, submission{header: r.Header.Clone(), body: string(body)})
		status := c.status
		c.mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(c.Close)
	return c
}

func (c *collector) received() []submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]submission(nil), c.submissions...)
}

// existingConfig writes a configuration file so that loading it is not a
// first run.
func existingConfig(t *testing.T, edit func(*config.Config)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.properties")
	c := config.Default()
	if edit != nil {
		edit(c)
	}
	require.NoError(t, config.Save(path, c))
	return path
}

func mustChart(t *testing.T) func(chart.Source, error) chart.Source {
	return func(src chart.Source, err error) chart.Source {
		t.Helper()
		require.NoError(t, err)
		return src
	}
}

func newTestMetrics(t *testing.T, env Environment, opts Options) *Metrics {
	t.Helper()
	if opts.Token == "" {
		opts.Token = testToken
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = existingConfig(t, nil)
	}
	if opts.Tracker == nil {
		opts.Tracker = errtrack.NewWithLimits(errtrack.DefaultLimits())
	}
	opts.Logger = zaptest.NewLogger(t)
	m, err := New(env, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestNewValidation(t *testing.T) {
	must := mustChart(t)
	players := must(chart.Number("players", func() (float64, error) { return 3, nil }))
	reserved := must(chart.Bool("errors", func() (bool, error) { return true, nil }))

	cases := []struct {
		name string
		opts Options
		want error
	}{
		{"MissingToken", Options{}, ErrMissingToken},
		{"UpperCaseToken", Options{Token: "0123456789ABCDEFGHIJKLMNOPQRSTUV"}, ErrInvalidToken},
		{"ShortToken", Options{Token: "abc123"}, ErrInvalidToken},
		{"BadURL", Options{Token: testToken, URL: "ftp://example.com"}, ErrInvalidURL},
		{"DuplicateChart", Options{Token: testToken, Charts: []chart.Source{players, players}}, ErrDuplicateChart},
		{"ReservedChart", Options{Token: testToken, Charts: []chart.Source{reserved}}, ErrDuplicateChart},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.ConfigPath = filepath.Join(t.TempDir(), "config.properties")
			_, err := New(nil, tc.opts)
			assert.ErrorIs(t, err, tc.want)
			assert.NoFileExists(t, tc.opts.ConfigPath)
		})
	}

	assert.True(t, ValidToken(testToken))
	assert.False(t, ValidToken(testToken+"a"))
}

func TestCreateData(t *testing.T) {
	must := mustChart(t)
	charts := []chart.Source{
		must(chart.Number("players", func() (float64, error) { return 12, nil })),
		must(chart.String("failing", func() (string, error) { return "", errors.New("database down") })),
		must(chart.Bool("panicking", func() (bool, error) { panic("broken chart") })),
		must(chart.StringArray("empty", func() ([]string, error) { return nil, chart.ErrNoData })),
		must(chart.StringArray("worlds", func() ([]string, error) { return []string{"overworld", "nether"}, nil })),
	}
	env := EnvironmentFunc(func() map[string]chart.Value {
		return map[string]chart.Value{
			"plugin_version": chart.StringValue("1.2.0"),
			"Bad-Id":         chart.StringValue("dropped"),
			"tps":            chart.NumberValue(math.Inf(1)),
		}
	})
	m := newTestMetrics(t, env, Options{Charts: charts})

	p := m.CreateData(context.Background())
	assert.Equal(t, m.Config().ServerID, p.Identifier)
	assert.Equal(t, chart.NumberValue(12), p.Data["players"])
	assert.Equal(t, chart.StringArrayValue([]string{"overworld", "nether"}), p.Data["worlds"])
	assert.Equal(t, chart.StringValue("1.2.0"), p.Data["plugin_version"])
	assert.Contains(t, p.Data, "runtime_version")
	assert.Contains(t, p.Data, "core_count")
	for _, id := range []string{"failing", "panicking", "empty", "Bad-Id", "tps"} {
		assert.NotContains(t, p.Data, id)
	}

	// both broken charts were tracked
	require.Len(t, p.Errors, 2)
	assert.Equal(t, 2, m.Tracker().Len())
	kinds := []string{p.Errors[0].Report.Kind, p.Errors[1].Report.Kind}
	assert.Contains(t, kinds, "panic")
}

func TestSubmitSkipsNonFiniteChart(t *testing.T) {
	must := mustChart(t)
	srv := newCollector(t, http.StatusOK)
	m := newTestMetrics(t, nil, Options{URL: srv.URL, Charts: []chart.Source{
		must(chart.Number("ratio", func() (float64, error) { return math.NaN(), nil })),
		must(chart.Number("players", func() (float64, error) { return 5, nil })),
	}})
	m.Tracker().TrackError(errtrack.NewError("lag spike"))

	require.NoError(t, m.Submit(context.Background()))
	got := srv.received()
	require.Len(t, got, 1)

	body := got[0].body
	assert.Equal(t, 5.0, gjson.Get(body, "data.players").Float())
	assert.False(t, gjson.Get(body, "data.ratio").Exists())
	assert.Equal(t, int64(2), gjson.Get(body, "data.errors.#").Int())
	assert.Zero(t, m.Tracker().Len())
}

func TestSubmit(t *testing.T) {
	t.Run("SuccessClearsErrors", func(t *testing.T) {
		srv := newCollector(t, http.StatusOK)
		m := newTestMetrics(t, nil, Options{URL: srv.URL})

		for i := 0; i < 2; i++ {
			m.Tracker().TrackError(errtrack.NewError("x"))
		}
		m.Tracker().TrackError(errors.New("other"))
		require.Equal(t, 2, m.Tracker().Len())

		require.NoError(t, m.Submit(context.Background()))
		assert.Zero(t, m.Tracker().Len())

		got := srv.received()
		require.Len(t, got, 1)
		h := got[0].header
		assert.Equal(t, "gzip", h.Get("Content-Encoding"))
		assert.Equal(t, "application/octet-stream", h.Get("Content-Type"))
		assert.Equal(t, "Bearer "+testToken, h.Get("Authorization"))
		assert.Equal(t, "FastStats Metrics", h.Get("User-Agent"))

		body := got[0].body
		assert.Equal(t, m.Config().ServerID.String(), gjson.Get(body, "identifier").String())
		assert.Equal(t, int64(2), gjson.Get(body, "data.errors.#").Int())
		assert.Equal(t, int64(2), gjson.Get(body, "data.errors.0.count").Int())
		assert.Equal(t, "x", gjson.Get(body, "data.errors.0.message").String())
		assert.Equal(t, "error", gjson.Get(body, "data.errors.0.error").String())
		assert.Len(t, gjson.Get(body, "data.errors.0.hash").String(), 32)
		assert.False(t, gjson.Get(body, "data.errors.1.count").Exists())
		assert.True(t, gjson.Get(body, "data.runtime_version").Exists())

		sum := m.Stats()
		assert.EqualValues(t, 1, sum.Count2xx)
		assert.Equal(t, http.StatusOK, sum.LastStatus)
	})

	t.Run("ServerErrorKeepsErrors", func(t *testing.T) {
		srv := newCollector(t, http.StatusInternalServerError)
		m := newTestMetrics(t, nil, Options{URL: srv.URL})
		m.Tracker().TrackError(errors.New("kept"))
		before := m.Tracker().Entries()

		err := m.Submit(context.Background())
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
		assert.Equal(t, "ok", se.Body)
		assert.Equal(t, before, m.Tracker().Entries())
		assert.EqualValues(t, 1, m.Stats().Count5xx)
	})

	t.Run("ConnectFailure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		m := newTestMetrics(t, nil, Options{URL: url})
		m.Tracker().TrackError(errors.New("kept"))
		assert.Error(t, m.Submit(context.Background()))
		assert.Equal(t, 1, m.Tracker().Len())
		assert.EqualValues(t, 1, m.Stats().CountFailed)
		assert.Equal(t, reasonConnect, m.Stats().LastFailure)
	})

	t.Run("TrackingDisabled", func(t *testing.T) {
		srv := newCollector(t, http.StatusOK)
		path := existingConfig(t, func(c *config.Config) { c.ErrorTracking = false })
		m := newTestMetrics(t, nil, Options{URL: srv.URL, ConfigPath: path})

		m.Tracker().TrackError(errors.New("ignored"))
		assert.Zero(t, m.Tracker().Len())
		require.NoError(t, m.Submit(context.Background()))
		assert.False(t, gjson.Get(srv.received()[0].body, "data.errors").Exists())
	})
}

type managedEnv struct{}

func (managedEnv) DefaultData() map[string]chart.Value { return nil }
func (managedEnv) ManagesEnablement() bool             { return true }

func TestStartSubmitting(t *testing.T) {
	fast := Options{InitialDelay: 10 * time.Millisecond, Period: 50 * time.Millisecond}

	t.Run("FirstRunWaitsForRestart", func(t *testing.T) {
		srv := newCollector(t, http.StatusOK)
		opts := fast
		opts.URL = srv.URL
		opts.ConfigPath = filepath.Join(t.TempDir(), "config.properties")
		m := newTestMetrics(t, nil, opts)
		require.True(t, m.Config().FirstRun)

		m.StartSubmitting()
		assert.False(t, m.IsSubmitting())
		assert.FileExists(t, opts.ConfigPath)
	})

	t.Run("FirstRunManagedEnablement", func(t *testing.T) {
		srv := newCollector(t, http.StatusOK)
		opts := fast
		opts.URL = srv.URL
		opts.ConfigPath = filepath.Join(t.TempDir(), "config.properties")
		m := newTestMetrics(t, managedEnv{}, opts)

		m.StartSubmitting()
		assert.True(t, m.IsSubmitting())
	})

	t.Run("Disabled", func(t *testing.T) {
		srv := newCollector(t, http.StatusOK)
		opts := fast
		opts.URL = srv.URL
		opts.ConfigPath = existingConfig(t, func(c *config.Config) { c.Enabled = false })
		m := newTestMetrics(t, nil, opts)

		assert.False(t, m.Tracker().Enabled())
		m.StartSubmitting()
		assert.False(t, m.IsSubmitting())
		require.NoError(t, m.Shutdown(context.Background()))
		assert.Empty(t, srv.received())
	})

	t.Run("Scheduled", func(t *testing.T) {
		srv := newCollector(t, http.StatusOK)
		opts := fast
		opts.URL = srv.URL
		m := newTestMetrics(t, nil, opts)

		m.StartSubmitting()
		require.True(t, m.IsSubmitting())
		m.StartSubmitting()
		assert.True(t, m.IsSubmitting())

		assert.Eventually(t, func() bool { return len(srv.received()) >= 2 }, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, m.Shutdown(context.Background()))
		assert.False(t, m.IsSubmitting())
		n := len(srv.received())
		time.Sleep(120 * time.Millisecond)
		assert.Equal(t, n, len(srv.received()), "no submission after shutdown")
	})

	t.Run("ConfigDisablesWhileRunning", func(t *testing.T) {
		srv := newCollector(t, http.StatusOK)
		opts := fast
		opts.URL = srv.URL
		opts.Period = time.Hour
		opts.WatchConfig = true
		m := newTestMetrics(t, nil, opts)

		m.StartSubmitting()
		require.True(t, m.IsSubmitting())

		cfg := m.Config()
		cfg.Enabled = false
		require.NoError(t, config.Save(opts.ConfigPath, &cfg))

		assert.Eventually(t, func() bool { return !m.IsSubmitting() }, 5*time.Second, 10*time.Millisecond)
		assert.False(t, m.Tracker().Enabled())
		assert.False(t, m.Config().Enabled)
	})

	t.Run("ConfigCorruptedServerID", func(t *testing.T) {
		srv := newCollector(t, http.StatusOK)
		opts := fast
		opts.URL = srv.URL
		opts.Period = time.Hour
		opts.WatchConfig = true
		m := newTestMetrics(t, nil, opts)
		id := m.Config().ServerID

		m.StartSubmitting()
		require.True(t, m.IsSubmitting())

		corrupted := "serverId=garbage\nenabled=true\nsubmitErrors=true\nsubmitAdditionalMetrics=true\ndebug=true\n"
		require.NoError(t, os.WriteFile(opts.ConfigPath, []byte(corrupted), 0o644))

		assert.Eventually(t, func() bool { return m.Config().Debug }, 5*time.Second, 10*time.Millisecond)
		assert.Equal(t, id, m.Config().ServerID)
		assert.Eventually(t, func() bool {
			c, err := config.Read(opts.ConfigPath)
			return err == nil && c.ServerID == id
		}, 5*time.Second, 10*time.Millisecond)
		assert.Equal(t, id, m.CreateData(context.Background()).Identifier)
	})
}

func TestScopeAttachment(t *testing.T) {
	prev := errtrack.SetUncaughtHandler(nil)
	defer errtrack.SetUncaughtHandler(prev)

	m := newTestMetrics(t, nil, Options{Scope: errtrack.NewScope("github.com/acme/plugin")})
	assert.True(t, m.Tracker().IsContextAttached())

	errtrack.Uncaught(errtrack.WithFrames("boom", errtrack.Frame{Function: "github.com/acme/plugin.Run", File: "run.go", Line: 3}))
	assert.Equal(t, 1, m.Tracker().Len())

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.Tracker().IsContextAttached())
	assert.Nil(t, errtrack.CurrentUncaughtHandler())
}

func TestConcurrentShutdown(t *testing.T) {
	prev := errtrack.SetUncaughtHandler(nil)
	defer errtrack.SetUncaughtHandler(prev)

	m := newTestMetrics(t, nil, Options{Scope: errtrack.NewScope("github.com/acme/plugin")})
	require.True(t, m.Tracker().IsContextAttached())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Shutdown(context.Background()))
		}()
	}
	wg.Wait()
	assert.False(t, m.Tracker().IsContextAttached())
	assert.Nil(t, errtrack.CurrentUncaughtHandler())
}

func TestRegisterer(t *testing.T) {
	srv := newCollector(t, http.StatusOK)
	reg := prometheus.NewRegistry()
	m := newTestMetrics(t, nil, Options{URL: srv.URL, Registerer: reg})
	m.Tracker().TrackError(errors.New("pending"))
	require.NoError(t, m.Submit(context.Background()))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, name := range []string{
		"faststats_submissions_total",
		"faststats_submission_duration_seconds",
		"faststats_tracked_errors_pending",
		"faststats_goroutines",
	} {
		assert.True(t, names[name], name)
	}

	_, err = New(nil, Options{Token: testToken, ConfigPath: existingConfig(t, nil), Registerer: reg})
	assert.Error(t, err, "collectors are registered once per registry")
}

func TestFixedRate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newFixedRate(30*time.Second, time.Minute)

	first := s.Next(start)
	assert.Equal(t, start.Add(30*time.Second), first)
	assert.Equal(t, first.Add(time.Minute), s.Next(first))
	// a late run skips the activations it missed
	late := first.Add(3*time.Minute + time.Second)
	assert.Equal(t, first.Add(4*time.Minute), s.Next(late))
}
