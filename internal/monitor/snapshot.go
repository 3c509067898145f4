package monitor

import (
	"sync"

	"github.com/rs/zerolog"
)

// SnapshotSink is the shared sink every Host Monitor replays its dump's
// relevant lines into. It is the one piece of mutable state Host Monitors
// share: a mutex serializes writers so that an entire dump block (header,
// relevant lines, footer) is atomic with respect to other hosts' dumps,
// per spec §5.
type SnapshotSink struct {
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSnapshotSink creates a SnapshotSink backed by log.
func NewSnapshotSink(log zerolog.Logger) *SnapshotSink {
	return &SnapshotSink{log: log}
}

// Replay writes one dump's relevant lines to the sink, as a single atomic
// block: a "new dump" marker, the lines themselves in order, then an "end
// of dump" marker.
func (s *SnapshotSink) Replay(host string, lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info().Str("host", host).Msg("new dump")
	for _, line := range lines {
		s.log.Info().Msg(line)
	}
	s.log.Info().Str("host", host).Msg("end of dump")
}
