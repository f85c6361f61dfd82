package metrics

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/jom-io/gorig-telemetry/src/chart"
	"github.com/jom-io/gorig-telemetry/src/errtrack"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultURL          = "https://metrics.faststats.dev/v1/collect"
	DefaultInitialDelay = 30 * time.Second
	DefaultPeriod       = 30 * time.Minute

	userAgent     = "FastStats Metrics"
	submitTimeout = 3 * time.Second
	errorsKey     = "errors"
)

const onboarding = `This program uses FastStats to collect anonymous usage statistics.
No personal or identifying information is ever collected.
To opt out, set 'enabled=false' in the metrics configuration file.
Learn more at: https://faststats.dev/info`

var (
	ErrMissingToken   = errors.New("metrics token must be specified")
	ErrInvalidToken   = errors.New("invalid metrics token")
	ErrDuplicateChart = errors.New("chart already added")
	ErrInvalidURL     = errors.New("invalid collector url")

	tokenPattern = regexp.MustCompile(`^[a-z0-9]{32}$`)
)

// ValidToken reports whether token has the collector's token format.
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// Environment supplies the platform specific fields sent with every
// submission, such as a user count or the host version.
type Environment interface {
	DefaultData() map[string]chart.Value
}

// EnvironmentFunc adapts a function to Environment.
type EnvironmentFunc func() map[string]chart.Value

func (f EnvironmentFunc) DefaultData() map[string]chart.Value { return f() }

// EnablementManager is implemented by environments that obtain the
// operator's consent themselves. Submission then starts on a first run too.
type EnablementManager interface {
	ManagesEnablement() bool
}

type Options struct {
	Token string
	URL   string // DefaultURL when empty
	Debug bool

	Charts []chart.Source

	// Tracker collects the errors sent with each submission. A tracker
	// with limits from the environment is created when nil.
	Tracker *errtrack.Tracker
	// Scope, when set, attaches the tracker to uncaught errors raised
	// inside it.
	Scope *errtrack.Scope

	// ConfigPath is the properties file holding the operator's choices.
	// It defaults to faststats/config.properties in the user config dir.
	ConfigPath  string
	WatchConfig bool

	InitialDelay time.Duration // DefaultInitialDelay when zero
	Period       time.Duration // DefaultPeriod when zero

	HTTPClient *http.Client
	Registerer prometheus.Registerer
	Logger     *zap.Logger
}

// StatusError is returned by Submit when the collector answered with a
// non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("metrics server responded with %d (%s)", e.StatusCode, e.Body)
}
