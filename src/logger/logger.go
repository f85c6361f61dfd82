package logger

import (
	"context"
	"sync/atomic"

	"github.com/rs/xid"
	"go.uber.org/zap"
)

// TraceIDKey is the field name under which the trace id is logged.
const TraceIDKey = "_trace_id_"

type traceKey struct{}

var std atomic.Pointer[Logger]

func init() {
	std.Store(New(zap.NewNop()))
}

// Logger writes zap entries tagged with the trace id found in the context.
type Logger struct {
	z *zap.Logger
}

func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// SetDefault replaces the logger used by the package-level functions.
func SetDefault(z *zap.Logger) {
	std.Store(New(z))
}

func Default() *Logger {
	return std.Load()
}

// NewCtx returns a background context carrying a fresh trace id.
func NewCtx() context.Context {
	return WithTrace(context.Background())
}

// WithTrace attaches a fresh trace id to ctx unless it already has one.
func WithTrace(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if TraceID(ctx) != "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, xid.New().String())
}

func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

func (l *Logger) Zap() *zap.Logger {
	return l.z
}

func (l *Logger) with(ctx context.Context, fields []zap.Field) []zap.Field {
	if id := TraceID(ctx); id != "" {
		return append(fields, zap.String(TraceIDKey, id))
	}
	return fields
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.z.Debug(msg, l.with(ctx, fields)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.z.Info(msg, l.with(ctx, fields)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.z.Warn(msg, l.with(ctx, fields)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.z.Error(msg, l.with(ctx, fields)...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Default().Debug(ctx, msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Default().Info(ctx, msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Default().Warn(ctx, msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Default().Error(ctx, msg, fields...)
}
