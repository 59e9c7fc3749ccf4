// Package controller runs the background playback engine: it owns the
// decode resource, keeps a queue of upcoming songs topped up from the
// protocol client and exposes thread-safe transport commands to the
// foreground.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pandora-cli/pandora/internal/bandwidth"
	"github.com/pandora-cli/pandora/internal/station"
	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is the playback loop cadence. The stop signal is
// polled once per tick, so shutdown latency is bounded by one interval.
const DefaultTickInterval = time.Second

const refillTimeout = 45 * time.Second

var (
	// ErrRunning rejects configuration changes while the loop is alive.
	ErrRunning = errors.New("not allowed while the controller is running")
	// ErrQueueExhausted marks a refill that produced no playable songs.
	ErrQueueExhausted = errors.New("no playable songs available")
)

// MediaResource is the decodable media abstraction the controller drives.
// Concrete decoding lives outside the engine.
type MediaResource interface {
	SetSource(url string) error
	SetGain(gainDB float64)
	Prepare() error
	Start()
	Pause()
	Reset()
	Release()
	IsPlaying() bool
	Position() time.Duration
	Duration() time.Duration
	SetOnCompletion(fn func())
	SetOnBufferingUpdate(fn func(percent int))
}

// PlaylistSource supplies songs for a station. Satisfied by the protocol
// client.
type PlaylistSource interface {
	GetPlaylist(ctx context.Context, stationToken string) ([]station.Song, error)
}

// Connectivity reports whether the device currently has a usable network
// connection.
type Connectivity interface {
	IsConnected() bool
}

// Listeners holds the optional foreground callbacks. Each is delivered on
// the controller's executor, never on the loop goroutine.
type Listeners struct {
	OnNewSong           func(song *station.Song)
	OnPlaybackContinued func()
	OnPlaybackHalted    func()
}

// Controller is the playback engine. All exported methods are safe for
// concurrent use; commands return without blocking except Stop, which
// waits for the loop to acknowledge.
type Controller struct {
	media     MediaResource
	conn      Connectivity
	estimator *bandwidth.Estimator

	tickInterval time.Duration

	mu           sync.Mutex
	source       PlaylistSource
	stationToken string
	queue        []station.Song
	current      *station.Song
	minQuality   station.AudioFormat
	maxQuality   station.AudioFormat
	playValid    bool
	paused       bool
	needNext     bool
	refilling    bool

	running   bool
	stopping  bool
	stopCh    chan chan struct{}
	loopDone  chan struct{}
	listeners Listeners
	notify    func(fn func())
}

// New creates a stopped controller around the given collaborators. The
// station and playlist source are installed with Reset before Start.
func New(media MediaResource, conn Connectivity, estimator *bandwidth.Estimator) *Controller {
	return &Controller{
		media:        media,
		conn:         conn,
		estimator:    estimator,
		tickInterval: DefaultTickInterval,
		minQuality:   station.AAC32,
		maxQuality:   station.MP3192,
		notify:       func(fn func()) { go fn() },
	}
}

// SetListeners installs the foreground callbacks. Only allowed while the
// controller is stopped.
func (c *Controller) SetListeners(l Listeners) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrRunning
	}
	c.listeners = l
	return nil
}

// SetExecutor designates the execution context callbacks are marshalled
// onto. Only allowed while the controller is stopped.
func (c *Controller) SetExecutor(exec func(fn func())) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrRunning
	}
	if exec != nil {
		c.notify = exec
	}
	return nil
}

// SetQualityRange restricts song stream selection to formats within
// [min, max]. Validation is synchronous; an inverted range fails before
// any background work is spawned.
func (c *Controller) SetQualityRange(min, max station.AudioFormat) error {
	if !station.ValidRange(min, max) {
		return fmt.Errorf("invalid quality range %v..%v", min, max)
	}

	go func() {
		c.mu.Lock()
		c.minQuality = min
		c.maxQuality = max
		c.mu.Unlock()
	}()
	return nil
}

// Start launches the background loop. When a previous run has been
// signalled to stop but its goroutine has not exited yet, Start blocks
// until that run is fully joined.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.running && !c.stopping {
		c.mu.Unlock()
		return ErrRunning
	}
	prev := c.loopDone
	c.mu.Unlock()

	if prev != nil {
		<-prev
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunning
	}
	c.running = true
	c.stopping = false
	c.needNext = true
	c.playValid = false
	c.paused = false
	c.stopCh = make(chan chan struct{})
	c.loopDone = make(chan struct{})
	stopCh := c.stopCh
	done := c.loopDone
	c.mu.Unlock()

	c.media.SetOnCompletion(func() {
		c.mu.Lock()
		c.needNext = true
		c.playValid = false
		c.mu.Unlock()
	})

	go c.loop(stopCh, done)
	log.Debug().Msg("Playback loop started")
	return nil
}

// Stop signals the loop, blocks the caller until the loop acknowledges,
// then releases the decode resource and clears the queue. Safe to call
// repeatedly; must not be called from the loop's own callbacks.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.stopping = true
	stopCh := c.stopCh
	done := c.loopDone
	c.mu.Unlock()

	ack := make(chan struct{})
	select {
	case stopCh <- ack:
		<-ack
	case <-done:
	}
	<-done

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.stopping = false
	c.media.Release()
	c.queue = nil
	c.current = nil
	c.playValid = false
	c.paused = false
	c.mu.Unlock()

	log.Debug().Msg("Playback loop stopped")
}

// Play clears the pause flag and resumes the prepared song, if any. A
// no-op until a song has been successfully prepared.
func (c *Controller) Play() {
	go func() {
		c.mu.Lock()
		c.paused = false
		resumed := false
		if c.playValid && !c.media.IsPlaying() {
			c.media.Start()
			resumed = true
		}
		fn := c.listeners.OnPlaybackContinued
		c.mu.Unlock()

		if resumed && fn != nil {
			c.notify(fn)
		}
	}()
}

// Pause halts playback until Play is called.
func (c *Controller) Pause() {
	go func() {
		c.mu.Lock()
		c.paused = true
		halted := false
		if c.media.IsPlaying() {
			c.media.Pause()
			halted = true
		}
		fn := c.listeners.OnPlaybackHalted
		c.mu.Unlock()

		if halted && fn != nil {
			c.notify(fn)
		}
	}()
}

// Skip abandons the current song; the loop advances to the next queued
// song on its following tick.
func (c *Controller) Skip() {
	go func() {
		c.mu.Lock()
		if c.media.IsPlaying() {
			c.media.Pause()
		}
		c.needNext = true
		c.playValid = false
		c.mu.Unlock()
	}()
}

// Reset stops current playback and swaps in a new station and playlist
// source. The swap is applied before Reset returns, so a following Start
// or Play always observes the new station. Playback stays paused until
// the caller resumes it with Play.
func (c *Controller) Reset(stationToken string, source PlaylistSource) {
	c.mu.Lock()
	c.media.Reset()
	c.queue = nil
	c.current = nil
	c.stationToken = stationToken
	c.source = source
	c.playValid = false
	c.needNext = true
	c.paused = true
	c.mu.Unlock()
	log.Debug().Str("station", stationToken).Msg("Controller reset to new station")
}

// CurrentSong returns the song currently loaded into the decode resource.
func (c *Controller) CurrentSong() *station.Song {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// QueueLength returns the number of songs waiting behind the current one.
func (c *Controller) QueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Running reports whether the background loop is alive.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) loop(stopCh chan chan struct{}, done chan struct{}) {
	defer close(done)

	for {
		select {
		case ack := <-stopCh:
			ack <- struct{}{}
			return
		case <-time.After(c.tickInterval):
			c.tick()
		}
	}
}

// tick is one pass of the playback loop: check connectivity, top up the
// queue, advance to the next song when needed, keep audio running.
func (c *Controller) tick() {
	if !c.conn.IsConnected() {
		return
	}

	c.mu.Lock()

	if len(c.queue) <= 1 && !c.refilling && c.source != nil && c.stationToken != "" {
		c.refilling = true
		token := c.stationToken
		src := c.source
		go c.refill(src, token)
	}

	var announce func()
	if c.needNext && len(c.queue) > 0 {
		song := c.queue[0]
		c.queue = c.queue[1:]
		c.needNext = false
		c.current = &song
		c.prepareLocked(&song)

		if fn := c.listeners.OnNewSong; fn != nil {
			s := song
			announce = func() { fn(&s) }
		}
	}

	if !c.paused && c.playValid && !c.media.IsPlaying() {
		c.media.Start()
	}

	c.mu.Unlock()

	if announce != nil {
		c.notify(announce)
	}
}

// prepareLocked loads song into the decode resource. Failures leave
// playValid false and never crash the loop. Callers hold c.mu.
func (c *Controller) prepareLocked(song *station.Song) {
	c.playValid = false

	url := song.BestAudioURL(c.minQuality, c.maxQuality)
	if url == "" {
		log.Warn().Str("track", song.Title).Msg("No stream URL within the configured quality range")
		return
	}

	if err := c.media.SetSource(url); err != nil {
		log.Warn().Err(err).Str("track", song.Title).Msg("Failed to set media source")
		return
	}
	c.media.SetGain(song.FileGain)

	// The buffering callback must be in place before Prepare starts the
	// download.
	if c.estimator != nil {
		sessionID := uuid.NewString()
		bitrate := c.statedBitrateLocked(song, url)
		media := c.media
		est := c.estimator
		c.media.SetOnBufferingUpdate(func(percent int) {
			est.Update(sessionID, percent, media.Duration().Milliseconds(), bitrate, time.Now().UnixMilli())
		})
	}

	if err := c.media.Prepare(); err != nil {
		log.Warn().Err(err).Str("track", song.Title).Msg("Failed to prepare media")
		return
	}

	c.playValid = true
	log.Debug().Str("track", song.Title).Str("artist", song.Artist).Msg("Prepared next song")
}

func (c *Controller) statedBitrateLocked(song *station.Song, url string) int {
	for _, a := range song.Audio {
		if a.URL == url {
			return a.Bitrate
		}
	}
	return 0
}

// refill fetches more songs off the loop's mutex and splices them in.
// Errors are logged and swallowed; the low-queue check fires again next
// tick.
func (c *Controller) refill(src PlaylistSource, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), refillTimeout)
	songs, err := src.GetPlaylist(ctx, token)
	cancel()

	c.mu.Lock()
	c.refilling = false
	if err != nil {
		c.mu.Unlock()
		log.Warn().Err(err).Str("station", token).Msg("Playlist refill failed, retrying next tick")
		return
	}
	// A Reset or Stop may have landed while the fetch was in flight;
	// the results belong to the old station and must not be spliced in.
	if token != c.stationToken || !c.running {
		c.mu.Unlock()
		log.Debug().Str("station", token).Msg("Discarding refill for a superseded station")
		return
	}

	added := 0
	for _, song := range songs {
		if !song.HasAudio() {
			continue
		}
		c.queue = append(c.queue, song)
		added++
	}
	c.mu.Unlock()

	if added == 0 {
		log.Warn().Str("station", token).Err(ErrQueueExhausted).Msg("Playlist refill returned nothing playable")
		return
	}
	log.Debug().Int("added", added).Str("station", token).Msg("Queue refilled")
}
