package player

import (
	"bytes"
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestPercentToExponent(t *testing.T) {
	tests := []struct {
		percent  float64
		expected float64
	}{
		{0, MinVolumeDB},
		{100, 0},
		{-10, MinVolumeDB},
		{150, 0},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			result := percentToExponent(tt.percent)
			if result != tt.expected {
				t.Errorf("percentToExponent(%v) = %v, want %v", tt.percent, result, tt.expected)
			}
		})
	}
}

func TestPercentToExponentCurve(t *testing.T) {
	p25 := percentToExponent(25)
	p50 := percentToExponent(50)
	p75 := percentToExponent(75)

	if p25 >= p50 || p50 >= p75 {
		t.Error("Volume curve should be monotonically increasing")
	}
}

func TestGainToExponent(t *testing.T) {
	if got := gainToExponent(0); got != 0 {
		t.Errorf("gainToExponent(0) = %v, want 0", got)
	}
	// +6.02 dB is one doubling, so one base-2 exponent step.
	got := gainToExponent(20 * math.Log10(2))
	if math.Abs(got-1) > 1e-9 {
		t.Errorf("gainToExponent(one doubling) = %v, want 1", got)
	}
}

func TestSetGainClampsAndIsIdleSafe(t *testing.T) {
	p := NewPlayer()
	p.SetGain(-40)
	if p.gainDB != -MaxTrackGainDB {
		t.Errorf("gainDB = %v, want clamp at %v", p.gainDB, -MaxTrackGainDB)
	}
	p.SetGain(3.5)
	if p.gainDB != 3.5 {
		t.Errorf("gainDB = %v, want 3.5", p.gainDB)
	}
}

func TestSetSourceEmpty(t *testing.T) {
	p := NewPlayer()
	if err := p.SetSource(""); err == nil {
		t.Error("SetSource(\"\") should fail")
	}
}

func TestPrepareWithoutSource(t *testing.T) {
	p := NewPlayer()
	if err := p.Prepare(); err == nil {
		t.Error("Prepare() without a source should fail")
	}
}

func TestNewPlayerIdle(t *testing.T) {
	p := NewPlayer()

	if p.IsPlaying() {
		t.Error("new player should not be playing")
	}
	if p.Position() != 0 {
		t.Error("new player position should be 0")
	}
	if p.Duration() != 0 {
		t.Error("new player duration should be 0")
	}

	// Commands on an unprepared player are no-ops
	p.Start()
	if p.IsPlaying() {
		t.Error("Start() before Prepare() should be a no-op")
	}
	p.Pause()
	p.Reset()
	p.Release()
}

func TestTrackCompletionWaitsForPlayerLock(t *testing.T) {
	p := NewPlayer()
	completed := make(chan struct{})
	p.SetOnCompletion(func() { close(completed) })

	// Simulate end-of-track arriving while another goroutine holds the
	// player lock, as Start/Pause/Position do while talking to the
	// speaker. The completion path must queue up behind the lock rather
	// than run inline on the audio pipeline.
	p.mu.Lock()
	go p.finishTrack(p.onCompletion)

	select {
	case <-completed:
		p.mu.Unlock()
		t.Fatal("completion ran while the player lock was held")
	case <-time.After(20 * time.Millisecond):
	}
	p.mu.Unlock()

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired after the lock was released")
	}
	if p.IsPlaying() {
		t.Error("IsPlaying() = true after track completion")
	}
}

func TestDownloadReportsProgress(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 200_000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	var percents []int
	p := NewPlayer()

	data, contentLength, err := p.download(context.Background(), server.URL, func(pct int) {
		percents = append(percents, pct)
	})
	if err != nil {
		t.Fatalf("download() error = %v", err)
	}

	if len(data) != len(payload) {
		t.Errorf("download() returned %d bytes, want %d", len(data), len(payload))
	}
	if contentLength != int64(len(payload)) {
		t.Errorf("contentLength = %d, want %d", contentLength, len(payload))
	}

	if len(percents) == 0 {
		t.Fatal("no progress reported")
	}
	last := percents[len(percents)-1]
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress regressed: %v", percents)
		}
	}
}

func TestDownloadNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p := NewPlayer()
	if _, _, err := p.download(context.Background(), server.URL, nil); err == nil {
		t.Error("download() should fail for non-200 status")
	}
}

func TestDownloadCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write(bytes.Repeat([]byte{0x00}, 1024))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		time.Sleep(time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPlayer()
	if _, _, err := p.download(ctx, server.URL, nil); err == nil {
		t.Error("download() should fail when the context is cancelled")
	}
}

func TestDurationEstimateFromContentLength(t *testing.T) {
	p := NewPlayer()

	// 1_920_000 bytes at the 128 kbps fallback = 120 seconds
	p.mu.Lock()
	p.contentLength = 1_920_000
	p.mu.Unlock()

	got := p.Duration()
	want := 120 * time.Second
	if got != want {
		t.Errorf("Duration() = %v, want %v", got, want)
	}
}
