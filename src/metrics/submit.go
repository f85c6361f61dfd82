package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jom-io/gorig-telemetry/src/chart"
	"github.com/jom-io/gorig-telemetry/src/errtrack"
	"github.com/jom-io/gorig-telemetry/src/host"
	"github.com/jom-io/gorig-telemetry/src/logger"
	"github.com/jom-io/gorig-telemetry/src/stat/apistat"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const maxResponseBody = 4 << 10

// Payload is one submission. Errors are sent under data.errors.
type Payload struct {
	Identifier uuid.UUID
	Data       map[string]chart.Value
	Errors     []errtrack.Entry
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	data := make(map[string]any, len(p.Data)+1)
	for k, v := range p.Data {
		data[k] = v
	}
	if len(p.Errors) > 0 {
		data[errorsKey] = p.Errors
	}
	return json.Marshal(struct {
		Identifier string         `json:"identifier"`
		Data       map[string]any `json:"data"`
	}{p.Identifier.String(), data})
}

// CreateData assembles the next payload: host facts, chart values, the
// environment's default data and the pending errors. A failing chart is
// tracked and left out.
func (m *Metrics) CreateData(ctx context.Context) *Payload {
	ctx = logger.WithTrace(ctx)
	cfg := m.Config()

	data := host.Host().Facts(ctx).Data(cfg.AdditionalMetrics)
	for _, src := range m.charts {
		if src == nil {
			continue
		}
		v, ok, err := chart.Compute(src)
		if err != nil {
			m.fail(ctx, "Failed to build chart data", zap.String("chart", src.ID()), zap.Error(err))
			m.tracker.TrackError(err)
			continue
		}
		if ok {
			data[src.ID()] = v
		}
	}
	if m.env != nil {
		for id, v := range m.env.DefaultData() {
			if !chart.ValidID(id) || id == errorsKey {
				m.warn(ctx, "Skipping default data with invalid id", zap.String("id", id))
				continue
			}
			if !v.Finite() {
				m.warn(ctx, "Skipping default data with non-finite number", zap.String("id", id))
				continue
			}
			if !v.IsZero() {
				data[id] = v
			}
		}
	}

	p := &Payload{Identifier: cfg.ServerID, Data: data}
	if m.tracker.Enabled() {
		p.Errors = m.tracker.Entries()
	}
	return p
}

// Submit sends one payload. On a 2xx response the submitted errors are
// acknowledged; any other outcome leaves them for the next submission.
func (m *Metrics) Submit(ctx context.Context) error {
	ctx = logger.WithTrace(ctx)
	p := m.CreateData(ctx)

	raw, err := json.Marshal(p)
	if err != nil {
		m.fail(ctx, "Failed to encode metrics", zap.Error(err))
		return errors.Wrap(err, "encode metrics")
	}
	body, err := compress(raw)
	if err != nil {
		m.fail(ctx, "Failed to compress metrics", zap.Error(err))
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build metrics request")
	}
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("User-Agent", userAgent)

	m.info(ctx, "Sending metrics", zap.String("url", m.url))
	m.info(ctx, "Uncompressed data", zap.ByteString("data", raw))
	m.info(ctx, "Compressed size", zap.Int("bytes", len(body)))

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		reason := failureReason(err)
		m.stat.ObserveFailure(reason, time.Since(start), len(body))
		switch reason {
		case reasonTimeout:
			m.fail(ctx, "Metrics submission timed out", zap.String("url", m.url), zap.Duration("timeout", submitTimeout))
		case reasonConnect:
			m.fail(ctx, "Failed to connect to metrics server", zap.String("url", m.url))
		default:
			m.fail(ctx, "Failed to submit metrics", zap.Error(err))
		}
		return errors.Wrap(err, "submit metrics")
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	m.stat.Observe(resp.StatusCode, time.Since(start), len(body))

	status := zap.Int("status", resp.StatusCode)
	text := zap.ByteString("body", respBody)
	switch apistat.ClassOf(resp.StatusCode) {
	case apistat.Class2xx:
		m.info(ctx, "Metrics submitted", status, text)
		m.tracker.Acknowledge(p.Errors)
		return nil
	case apistat.Class3xx:
		m.warn(ctx, "Received redirect response from metrics server", status, text)
	case apistat.Class4xx:
		m.fail(ctx, "Submitted invalid request to metrics server", status, text)
	case apistat.Class5xx:
		m.fail(ctx, "Received server error response from metrics server", status, text)
	default:
		m.warn(ctx, "Received unexpected response from metrics server", status, text)
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, errors.Wrap(err, "compress metrics")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "compress metrics")
	}
	return buf.Bytes(), nil
}

const (
	reasonTimeout   = "timeout"
	reasonConnect   = "connect"
	reasonTransport = "transport"
)

func failureReason(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return reasonTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return reasonConnect
	}
	return reasonTransport
}
