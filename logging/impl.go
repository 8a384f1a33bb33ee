package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	impl struct {
		name  string
		level AtomicLevel
		inUTC bool

		appenders []Appender
	}

	// LogEntry embeds a zapcore Entry and slice of Fields.
	LogEntry struct {
		zapcore.Entry
		fields []zapcore.Field
	}
)

// appendersMu guards appender slices shared between a logger and its subloggers.
var appendersMu sync.RWMutex

func (imp *impl) newLogEntry(level Level, msg string) *LogEntry {
	ret := &LogEntry{}
	ret.Time = time.Now()
	ret.LoggerName = imp.name
	ret.Level = level.AsZap()
	ret.Message = msg
	ret.Caller = getCaller()
	return ret
}

func (imp *impl) AddAppender(appender Appender) {
	appendersMu.Lock()
	imp.appenders = append(imp.appenders, appender)
	appendersMu.Unlock()
}

func (imp *impl) Desugar() *zap.Logger {
	return imp.AsZap().Desugar()
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}

	appendersMu.RLock()
	defer appendersMu.RUnlock()
	return &impl{
		name:      newName,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	}
}

func (imp *impl) Named(name string) *zap.SugaredLogger {
	return imp.AsZap().Named(name)
}

func (imp *impl) Sync() error {
	appendersMu.RLock()
	defer appendersMu.RUnlock()
	var errs []error
	for _, appender := range imp.appenders {
		if err := appender.Sync(); err != nil {
			errs = append(errs, err)
		}
	}

	return multierr.Combine(errs...)
}

func (imp *impl) With(args ...interface{}) *zap.SugaredLogger {
	return imp.AsZap().With(args...)
}

func (imp *impl) WithOptions(opts ...zap.Option) *zap.SugaredLogger {
	return imp.AsZap().WithOptions(opts...)
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	// Only appenders that are also a `zapcore.Core` (e.g. the test observer) survive the
	// conversion.
	var copiedCores []zapcore.Core
	appendersMu.RLock()
	for _, appender := range imp.appenders {
		if core, ok := appender.(zapcore.Core); ok {
			copiedCores = append(copiedCores, core)
		}
	}
	appendersMu.RUnlock()

	ret := zap.Must(zapConfig().Build()).Sugar().Named(imp.name)
	for _, core := range copiedCores {
		ret = ret.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}

	return ret
}

func (imp *impl) shouldLog(ctx context.Context, logLevel Level) bool {
	if GlobalLogLevel.Level() == zapcore.DebugLevel {
		return true
	}
	if ctx != nil && IsDebugMode(ctx) {
		return true
	}

	return logLevel >= imp.level.Get()
}

func (imp *impl) write(entry *LogEntry) {
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}

	appendersMu.RLock()
	defer appendersMu.RUnlock()
	for _, appender := range imp.appenders {
		if err := appender.Write(entry.Entry, entry.fields); err != nil {
			fmt.Fprint(os.Stderr, err)
		}
	}
}

// keysAndValuesToFields pairs up alternating keys and values. A trailing key without a value is
// reported as an error field rather than dropped.
func keysAndValuesToFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, len(keysAndValues)/2)
	for keyIdx := 0; keyIdx < len(keysAndValues); keyIdx += 2 {
		var keyStr string
		if stringer, ok := keysAndValues[keyIdx].(fmt.Stringer); ok {
			keyStr = stringer.String()
		} else {
			keyStr = fmt.Sprintf("%v", keysAndValues[keyIdx])
		}

		if keyIdx+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(keyStr, keysAndValues[keyIdx+1]))
		} else {
			fields = append(fields, zap.Any(keyStr, errors.New("unpaired log key")))
		}
	}
	return fields
}

func (imp *impl) logArgs(ctx context.Context, level Level, args []interface{}) {
	if imp.shouldLog(ctx, level) {
		imp.write(imp.newLogEntry(level, fmt.Sprint(args...)))
	}
}

func (imp *impl) logf(ctx context.Context, level Level, template string, args []interface{}) {
	if imp.shouldLog(ctx, level) {
		imp.write(imp.newLogEntry(level, fmt.Sprintf(template, args...)))
	}
}

func (imp *impl) logw(ctx context.Context, level Level, msg string, keysAndValues []interface{}) {
	if imp.shouldLog(ctx, level) {
		entry := imp.newLogEntry(level, msg)
		entry.fields = keysAndValuesToFields(keysAndValues)
		imp.write(entry)
	}
}

func (imp *impl) Debug(args ...interface{}) {
	imp.logArgs(nil, DEBUG, args)
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.logf(nil, DEBUG, template, args)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.logw(nil, DEBUG, msg, keysAndValues)
}

func (imp *impl) CDebug(ctx context.Context, args ...interface{}) {
	imp.logArgs(ctx, DEBUG, args)
}

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	imp.logf(ctx, DEBUG, template, args)
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.logw(ctx, DEBUG, msg, keysAndValues)
}

func (imp *impl) Info(args ...interface{}) {
	imp.logArgs(nil, INFO, args)
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.logf(nil, INFO, template, args)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.logw(nil, INFO, msg, keysAndValues)
}

func (imp *impl) Warn(args ...interface{}) {
	imp.logArgs(nil, WARN, args)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.logf(nil, WARN, template, args)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.logw(nil, WARN, msg, keysAndValues)
}

func (imp *impl) Error(args ...interface{}) {
	imp.logArgs(nil, ERROR, args)
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.logf(nil, ERROR, template, args)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.logw(nil, ERROR, msg, keysAndValues)
}

// These Fatal* methods log as errors then exit the process.
func (imp *impl) Fatal(args ...interface{}) {
	imp.write(imp.newLogEntry(ERROR, fmt.Sprint(args...)))
	os.Exit(1)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.write(imp.newLogEntry(ERROR, fmt.Sprintf(template, args...)))
	os.Exit(1)
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	entry := imp.newLogEntry(ERROR, msg)
	entry.fields = keysAndValuesToFields(keysAndValues)
	imp.write(entry)
	os.Exit(1)
}

// getCaller walks up past the logging frames to the line that called the logger.
func getCaller() zapcore.EntryCaller {
	var ok bool
	var entryCaller zapcore.EntryCaller
	// getCaller <- newLogEntry <- log{Args,f,w} <- Debug/Info/... <- caller.
	const skipToLogCaller = 4
	entryCaller.PC, entryCaller.File, entryCaller.Line, ok = runtime.Caller(skipToLogCaller)
	if !ok {
		return entryCaller
	}
	entryCaller.Defined = true

	if runtimeFunc := runtime.FuncForPC(entryCaller.PC); runtimeFunc != nil {
		entryCaller.Function = runtimeFunc.Name()
	}

	return entryCaller
}
