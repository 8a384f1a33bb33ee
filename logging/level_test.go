package logging

import (
	"encoding/json"
	"testing"

	"go.viam.com/test"
)

func TestLevelParsing(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected Level
		err      bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"Warning", WARN, false},
		{"error", ERROR, false},
		{"verbose", DEBUG, true},
	} {
		t.Run(tc.input, func(t *testing.T) {
			level, err := LevelFromString(tc.input)
			if tc.err {
				test.That(t, err, test.ShouldNotBeNil)
				return
			}
			test.That(t, err, test.ShouldBeNil)
			test.That(t, level, test.ShouldEqual, tc.expected)
		})
	}
}

func TestLevelJSON(t *testing.T) {
	type wrapper struct {
		Level Level `json:"level"`
	}

	out, err := json.Marshal(wrapper{WARN})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `{"level":"warn"}`)

	var w wrapper
	test.That(t, json.Unmarshal([]byte(`{"level":"error"}`), &w), test.ShouldBeNil)
	test.That(t, w.Level, test.ShouldEqual, ERROR)

	test.That(t, json.Unmarshal([]byte(`{"level":"loud"}`), &w), test.ShouldNotBeNil)
}

func TestAtomicLevel(t *testing.T) {
	level := NewAtomicLevelAt(INFO)
	test.That(t, level.Get(), test.ShouldEqual, INFO)
	level.Set(ERROR)
	test.That(t, level.Get(), test.ShouldEqual, ERROR)
	test.That(t, level.Get().AsZap().String(), test.ShouldEqual, "error")
}
