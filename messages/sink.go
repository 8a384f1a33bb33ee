package messages

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.viam.com/rhplanner/logging"
	"go.viam.com/rhplanner/utils"
)

type record struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

// JSONLinesSink writes one JSON object per line, tagged with the message kind.
type JSONLinesSink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	logger logging.Logger
}

// NewJSONLinesSink returns a sink writing to w.
func NewJSONLinesSink(w io.Writer, logger logging.Logger) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w), logger: logger}
}

// Write appends one record.
func (s *JSONLinesSink) Write(kind string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(record{Kind: kind, Data: v})
}

// Record copies every outbound topic of bus into the sink until the returned workers are
// stopped.
func (s *JSONLinesSink) Record(bus *Bus) utils.StoppableWorkers {
	return utils.NewStoppableWorkers(
		drain(s, "path", bus.Path),
		drain(s, "trajectory", bus.Trajectory),
		drain(s, "command", bus.Command),
		drain(s, "tree", bus.Tree),
		drain(s, "corridor", bus.Corridor),
		drain(s, "trajectory_view", bus.TrajectoryView),
	)
}

func drain[T any](s *JSONLinesSink, kind string, topic *Topic[T]) func(context.Context) {
	return func(ctx context.Context) {
		id, ch := topic.Subscribe(DefaultBuffer)
		defer topic.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				if err := s.Write(kind, v); err != nil {
					s.logger.Warnw("failed to write telemetry record", "kind", kind, "err", err)
				}
			}
		}
	}
}
