// Package bandwidth estimates available network throughput from media
// buffering progress reports.
package bandwidth

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// WindowSize bounds the rolling sample window.
const WindowSize = 30

type audioSession struct {
	lastPercent   int
	lastTimestamp int64
}

// Estimator keeps a rolling window of per-tick throughput samples across
// all concurrently buffering audio sessions. Samples landing in the same
// tick are summed, not averaged, because concurrent sessions split the
// same link.
type Estimator struct {
	mu       sync.Mutex
	sessions map[string]*audioSession
	window   []float64
	sum      float64
	lastTick int64
}

// NewEstimator creates an empty estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		sessions: make(map[string]*audioSession),
	}
}

// Update records a buffering progress report for one audio session. A
// 100% report drops the session from the active set. The first report of
// a session yields no sample since there is no prior position to diff
// against.
func (e *Estimator) Update(sessionID string, bufferedPercent int, mediaLengthMs int64, statedBitrate int, timestampMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if bufferedPercent >= 100 {
		delete(e.sessions, sessionID)
		return
	}

	sess, ok := e.sessions[sessionID]
	if !ok {
		e.sessions[sessionID] = &audioSession{
			lastPercent:   bufferedPercent,
			lastTimestamp: timestampMs,
		}
		return
	}

	percentDelta := bufferedPercent - sess.lastPercent
	realDeltaMs := timestampMs - sess.lastTimestamp
	sess.lastPercent = bufferedPercent
	sess.lastTimestamp = timestampMs

	if percentDelta <= 0 || realDeltaMs <= 0 {
		return
	}

	// kbps = statedBitrate * buffered seconds gained / real seconds spent
	bufferedSec := float64(percentDelta) / 100 * float64(mediaLengthMs) / 1000
	realSec := float64(realDeltaMs) / 1000
	sample := float64(statedBitrate) * bufferedSec / realSec

	e.push(sample, timestampMs)
	log.Debug().Str("session", sessionID).Float64("kbps", sample).Msg("Bandwidth sample recorded")
}

// push aggregates the sample into the newest window entry when another
// session already contributed in the same tick, otherwise appends a new
// entry and evicts the oldest past WindowSize.
func (e *Estimator) push(sample float64, timestampMs int64) {
	if timestampMs == e.lastTick && len(e.window) > 0 {
		e.window[len(e.window)-1] += sample
		e.sum += sample
		return
	}

	e.lastTick = timestampMs
	e.window = append(e.window, sample)
	e.sum += sample
	if len(e.window) > WindowSize {
		e.sum -= e.window[0]
		e.window = e.window[1:]
	}
}

// Bitrate returns the average of the windowed samples in kbps, 0 when no
// sample has been recorded yet.
func (e *Estimator) Bitrate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.window) == 0 {
		return 0
	}
	return e.sum / float64(len(e.window))
}

// ActiveSessions returns the number of sessions still buffering.
func (e *Estimator) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}
