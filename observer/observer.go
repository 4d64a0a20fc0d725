// Package observer defines the opaque timing/diagnostics interface the
// engine's core reports through (spec: "the engine reports timing via an
// opaque observer interface"), plus a default logrus-backed
// implementation.
//
// Grounded on leftmike-maho's pervasive use of logrus as the structured
// logger injected throughout engine/server/repl; shimmer generalizes
// that idiom into an explicit interface since it has no server/repl
// layer of its own to anchor a package-level logger. The bounded
// recent-sample ring is a plain mutex-guarded map: Recent/Summary need
// the exact, immediately-visible ordering of the last write, which
// ristretto's async Set/Get (buffered, visible only after Wait) cannot
// give without blocking every Observe call on it.
package observer

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Observer receives one sample per completed operation: a kind label
// ("get", "put-split", "snapshot", ...), its duration, and a byte count
// (0 if not applicable).
type Observer interface {
	Observe(kind string, d time.Duration, nbytes int)
}

// Sample is one recorded observation.
type Sample struct {
	Kind    string
	Elapsed time.Duration
	Bytes   int
	At      time.Time
}

// LogObserver logs each sample via logrus and additionally retains up to
// a bounded number of recent samples per kind, so a caller can inspect
// "what did the last N operations of kind X cost" without unbounded
// growth.
type LogObserver struct {
	log *logrus.Logger

	mu      sync.Mutex
	recent  map[string][]Sample
	perKind int
}

// NewLogObserver constructs a LogObserver logging at logger's configured
// level and retaining up to perKind recent samples for each kind.
func NewLogObserver(logger *logrus.Logger, perKind int) *LogObserver {
	if logger == nil {
		logger = logrus.New()
	}
	if perKind <= 0 {
		perKind = 32
	}
	return &LogObserver{log: logger, recent: make(map[string][]Sample), perKind: perKind}
}

// Observe implements Observer.
func (o *LogObserver) Observe(kind string, d time.Duration, nbytes int) {
	o.log.WithFields(logrus.Fields{
		"kind":    kind,
		"elapsed": d.String(),
		"nbytes":  nbytes,
	}).Debug("shimmer operation")

	o.mu.Lock()
	defer o.mu.Unlock()
	s := Sample{Kind: kind, Elapsed: d, Bytes: nbytes, At: time.Now()}
	list := o.recent[kind]
	list = append(list, s)
	if len(list) > o.perKind {
		list = list[len(list)-o.perKind:]
	}
	o.recent[kind] = list
}

// Recent returns the most recent samples recorded for kind, oldest first.
func (o *LogObserver) Recent(kind string) []Sample {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := o.recent[kind]
	out := make([]Sample, len(list))
	copy(out, list)
	return out
}

// Summary renders a one-line human-readable digest of recent activity
// for kind, useful for ad-hoc debugging.
func (o *LogObserver) Summary(kind string) string {
	samples := o.Recent(kind)
	if len(samples) == 0 {
		return fmt.Sprintf("%s: no samples", kind)
	}
	var total time.Duration
	var bytes int
	for _, s := range samples {
		total += s.Elapsed
		bytes += s.Bytes
	}
	return fmt.Sprintf("%s: n=%d avg=%s total_bytes=%d", kind, len(samples), (total / time.Duration(len(samples))).String(), bytes)
}
