// Package log logs with fields carried by the context, such as the request id.
package log

import (
	"context"

	"github.com/nguyentranbao-ct/mindmap-chat/pkg/logger"
)

type fieldsKey struct{}

var base = logger.MustNamed("ctx")

// With returns a context whose log lines carry the given key/value pairs.
func With(ctx context.Context, keysAndValues ...any) context.Context {
	prev, _ := ctx.Value(fieldsKey{}).([]any)
	fields := make([]any, 0, len(prev)+len(keysAndValues))
	fields = append(fields, prev...)
	fields = append(fields, keysAndValues...)
	return context.WithValue(ctx, fieldsKey{}, fields)
}

func from(ctx context.Context) *logger.Logger {
	if ctx == nil {
		return base
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func Debugw(ctx context.Context, msg string, keysAndValues ...any) {
	from(ctx).Debugw(msg, keysAndValues...)
}

func Infow(ctx context.Context, msg string, keysAndValues ...any) {
	from(ctx).Infow(msg, keysAndValues...)
}

func Warnw(ctx context.Context, msg string, keysAndValues ...any) {
	from(ctx).Warnw(msg, keysAndValues...)
}

func Errorw(ctx context.Context, msg string, keysAndValues ...any) {
	from(ctx).Errorw(msg, keysAndValues...)
}

func Logw(ctx context.Context, level logger.Level, msg string, keysAndValues ...any) {
	from(ctx).Logw(level, msg, keysAndValues...)
}

func Infof(ctx context.Context, template string, args ...any) {
	from(ctx).Infof(template, args...)
}

func Warnf(ctx context.Context, template string, args ...any) {
	from(ctx).Warnf(template, args...)
}

func Errorf(ctx context.Context, template string, args ...any) {
	from(ctx).Errorf(template, args...)
}

func Info(ctx context.Context, args ...any) {
	from(ctx).Info(args...)
}
