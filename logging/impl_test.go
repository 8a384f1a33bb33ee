package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.viam.com/test"
)

func newBufferedLogger(buf *bytes.Buffer) *impl {
	return &impl{
		name:      "",
		level:     NewAtomicLevelAt(DEBUG),
		inUTC:     true,
		appenders: []Appender{NewWriterAppender(buf)},
	}
}

func TestConsoleOutputFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferedLogger(&buf)

	logger.Info("tick")
	line := strings.TrimSuffix(buf.String(), "\n")
	parts := strings.Split(line, "\t")
	test.That(t, len(parts), test.ShouldEqual, 5)
	test.That(t, len(parts[0]), test.ShouldEqual, len("2024-01-23T09:26:57.843Z"))
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "tick")

	buf.Reset()
	logger.Warnw("replan failed", "state", "TRACKING", "attempt", 3)
	parts = strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\t")
	test.That(t, parts[1], test.ShouldEqual, "WARN")
	test.That(t, parts[len(parts)-1], test.ShouldEqual, `{"state":"TRACKING","attempt":3}`)

	buf.Reset()
	logger.Infow("unpaired", "key")
	test.That(t, buf.String(), test.ShouldContainSubstring, `"key":"unpaired log key"`)
}

func TestSubloggerNameAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferedLogger(&buf)
	logger.name = "rhplanner"
	logger.SetLevel(WARN)

	sub := logger.Sublogger("replan")
	test.That(t, sub.GetLevel(), test.ShouldEqual, WARN)

	sub.Info("dropped")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	sub.Warn("kept")
	test.That(t, buf.String(), test.ShouldContainSubstring, "rhplanner.replan")

	// Changing the sublogger level does not affect the parent.
	sub.SetLevel(DEBUG)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)
}

func TestContextDebugMode(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferedLogger(&buf)
	logger.SetLevel(INFO)

	logger.CDebugf(context.Background(), "hidden %d", 1)
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	ctx := EnableDebugMode(context.Background(), "")
	test.That(t, IsDebugMode(ctx), test.ShouldBeTrue)
	test.That(t, len(GetName(ctx)), test.ShouldEqual, 6)
	logger.CDebugf(ctx, "shown %d", 2)
	test.That(t, buf.String(), test.ShouldContainSubstring, "shown 2")
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Sublogger("follower").Infow("hover", "x", 1.5)

	test.That(t, logs.FilterMessage("hover").Len(), test.ShouldEqual, 1)
	entry := logs.All()[0]
	test.That(t, entry.LoggerName, test.ShouldEqual, "follower")
	test.That(t, entry.ContextMap()["x"], test.ShouldEqual, 1.5)
}
