// Package metrics submits usage metrics and tracked errors to a FastStats
// collector on a fixed schedule.
package metrics

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jom-io/gorig-telemetry/src/chart"
	"github.com/jom-io/gorig-telemetry/src/config"
	"github.com/jom-io/gorig-telemetry/src/errtrack"
	"github.com/jom-io/gorig-telemetry/src/logger"
	"github.com/jom-io/gorig-telemetry/src/stat/apistat"
	"github.com/jom-io/gorig-telemetry/src/stat/errstat"
	"github.com/jom-io/gorig-telemetry/src/stat/gorstat"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Metrics owns the submission schedule of one telemetry client.
type Metrics struct {
	env     Environment
	token   string
	url     string
	debug   bool
	charts  []chart.Source
	tracker *errtrack.Tracker
	client  *http.Client
	log     *logger.Logger
	stat    *apistat.Serv

	cfgDebug     atomic.Bool
	configPath   string
	watchConfig  bool
	initialDelay time.Duration
	period       time.Duration
	attached     atomic.Bool

	mu      sync.Mutex
	cfg     config.Config
	cron    *cron.Cron
	watcher *config.Watcher
}

// New validates opts and loads the configuration file. Configuration
// errors are returned before anything is scheduled.
func New(env Environment, opts Options) (*Metrics, error) {
	if opts.Token == "" {
		return nil, ErrMissingToken
	}
	if !ValidToken(opts.Token) {
		return nil, errors.Wrapf(ErrInvalidToken, "%q must match %s", opts.Token, tokenPattern)
	}

	target := opts.URL
	if target == "" {
		target = DefaultURL
	}
	if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Wrapf(ErrInvalidURL, "%q", target)
	}

	seen := map[string]bool{errorsKey: true}
	for _, c := range opts.Charts {
		if c == nil {
			continue
		}
		if !chart.ValidID(c.ID()) {
			return nil, errors.Wrapf(chart.ErrInvalidID, "%q", c.ID())
		}
		if seen[c.ID()] {
			return nil, errors.Wrapf(ErrDuplicateChart, "%q", c.ID())
		}
		seen[c.ID()] = true
	}

	path := opts.ConfigPath
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "no metrics config path")
		}
		path = filepath.Join(dir, "faststats", "config.properties")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		env:          env,
		token:        opts.Token,
		url:          target,
		debug:        opts.Debug,
		charts:       opts.Charts,
		tracker:      opts.Tracker,
		client:       opts.HTTPClient,
		log:          logger.New(opts.Logger),
		stat:         apistat.New(),
		configPath:   path,
		watchConfig:  opts.WatchConfig,
		initialDelay: opts.InitialDelay,
		period:       opts.Period,
		cfg:          *cfg,
	}
	if m.tracker == nil {
		m.tracker = errtrack.New()
	}
	if m.client == nil {
		// redirects are reported, not followed
		m.client = &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}}
	}
	if m.initialDelay <= 0 {
		m.initialDelay = DefaultInitialDelay
	}
	if m.period <= 0 {
		m.period = DefaultPeriod
	}
	m.cfgDebug.Store(cfg.Debug)
	m.tracker.SetEnabled(cfg.Enabled && cfg.ErrorTracking)

	if reg := opts.Registerer; reg != nil {
		if err := m.stat.Register(reg); err != nil {
			return nil, err
		}
		if err := reg.Register(errstat.NewCollector(m.tracker)); err != nil {
			return nil, errors.Wrap(err, "register error metrics")
		}
		if err := reg.Register(gorstat.NewCollector()); err != nil {
			return nil, errors.Wrap(err, "register goroutine metrics")
		}
	}

	if opts.Scope != nil && cfg.Enabled && cfg.ErrorTracking {
		if err := m.tracker.AttachErrorContext(opts.Scope); err != nil {
			return nil, err
		}
		m.attached.Store(true)
	}
	return m, nil
}

// Config returns the configuration currently in effect.
func (m *Metrics) Config() config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *Metrics) Tracker() *errtrack.Tracker {
	return m.tracker
}

func (m *Metrics) Token() string {
	return m.token
}

// Stats returns the outcome of the submissions made so far.
func (m *Metrics) Stats() apistat.ApiLatencyStat {
	return m.stat.Summary()
}

func (m *Metrics) IsSubmitting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cron != nil
}

// StartSubmitting arms the schedule. On a first run the onboarding text is
// printed and nothing is scheduled unless the environment manages
// enablement itself.
func (m *Metrics) StartSubmitting() {
	ctx := logger.NewCtx()
	cfg := m.Config()

	if cfg.FirstRun {
		for _, line := range strings.Split(onboarding, "\n") {
			m.log.Info(ctx, line)
		}
		if !m.managesEnablement() {
			m.info(ctx, "First run, metrics submission starts with the next restart")
			return
		}
	}
	if !cfg.Enabled {
		m.warn(ctx, "Metrics disabled, not starting submission")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		m.warn(ctx, "Metrics already submitting, not starting again")
		return
	}

	cl := cronLogger{m: m}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(newFixedRate(m.initialDelay, m.period), cron.FuncJob(m.tick))
	c.Start()
	m.cron = c
	m.info(ctx, "Starting metrics submission",
		zap.Duration("initialDelay", m.initialDelay), zap.Duration("period", m.period))

	if m.watchConfig && m.watcher == nil {
		w, err := config.Watch(context.Background(), m.configPath, m.cfg.ServerID, m.reload)
		if err != nil {
			m.warn(ctx, "Failed to watch metrics config", zap.Error(err))
			return
		}
		m.watcher = w
	}
}

func (m *Metrics) managesEnablement() bool {
	em, ok := m.env.(EnablementManager)
	return ok && em.ManagesEnablement()
}

func (m *Metrics) tick() {
	_ = m.Submit(logger.NewCtx())
}

// reload applies a configuration changed on disk. Turning metrics off
// stops the schedule; turning them on again takes a restart.
func (m *Metrics) reload(c *config.Config) {
	ctx := logger.NewCtx()

	m.mu.Lock()
	c.FirstRun = m.cfg.FirstRun
	m.cfg = *c
	var stopped *cron.Cron
	if !c.Enabled && m.cron != nil {
		stopped, m.cron = m.cron, nil
	}
	m.mu.Unlock()

	m.cfgDebug.Store(c.Debug)
	m.tracker.SetEnabled(c.Enabled && c.ErrorTracking)
	m.info(ctx, "Reloaded metrics config", zap.Bool("enabled", c.Enabled), zap.Bool("submitErrors", c.ErrorTracking))
	if stopped != nil {
		stopped.Stop()
		m.log.Info(ctx, "Metrics disabled in config, submission stopped")
	}
}

// Shutdown cancels future submissions, waits for a running one and makes
// one final attempt when submissions were scheduled.
func (m *Metrics) Shutdown(ctx context.Context) error {
	ctx = logger.WithTrace(ctx)
	m.info(ctx, "Shutting down metrics submission")

	m.mu.Lock()
	c, w := m.cron, m.watcher
	m.cron, m.watcher = nil, nil
	m.mu.Unlock()

	if w != nil {
		if err := w.Close(); err != nil {
			m.warn(ctx, "Failed to stop config watcher", zap.Error(err))
		}
	}
	if m.attached.CompareAndSwap(true, false) {
		m.tracker.DetachErrorContext()
	}
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "metrics shutdown")
	}
	return m.Submit(ctx)
}

func (m *Metrics) isDebug() bool {
	return m.debug || m.cfgDebug.Load()
}

func (m *Metrics) info(ctx context.Context, msg string, fields ...zap.Field) {
	if m.isDebug() {
		m.log.Info(ctx, msg, fields...)
	}
}

func (m *Metrics) warn(ctx context.Context, msg string, fields ...zap.Field) {
	if m.isDebug() {
		m.log.Warn(ctx, msg, fields...)
	}
}

func (m *Metrics) fail(ctx context.Context, msg string, fields ...zap.Field) {
	if m.isDebug() {
		m.log.Error(ctx, msg, fields...)
	}
}
