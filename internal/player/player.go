// Package player implements the decodable media resource on top of beep:
// it downloads a song file over HTTP, decodes the MP3 data and plays it
// through the speaker, reporting buffering progress and completion.
package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate   = beep.SampleRate(44100)
	SpeakerBufferSize   = time.Millisecond * 250
	DownloadChunkSize   = 32 * 1024
	DownloadTimeout     = 2 * time.Minute
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
	MaxTrackGainDB      = 12.0
	DefaultVolume       = 70

	// fallbackBitrate sizes the duration estimate while the exact length
	// is unknown (before the file is decoded).
	fallbackBitrate = 128
)

// Player is a beep-backed media resource. It satisfies the playback
// controller's MediaResource interface.
type Player struct {
	mu sync.Mutex

	httpClient  *http.Client
	sourceURL   string
	cancel      context.CancelFunc
	streamer    beep.StreamSeekCloser
	format      beep.Format
	ctrl        *beep.Ctrl
	volume      *effects.Volume
	speakerInit bool
	prepared    bool
	playing     bool

	volumePercent int
	gainDB        float64
	contentLength int64

	onCompletion func()
	onBuffering  func(percent int)
}

// NewPlayer creates an idle player. The speaker is initialized lazily on
// the first successful Prepare.
func NewPlayer() *Player {
	return &Player{
		httpClient: &http.Client{
			Timeout: DownloadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
				DisableCompression:    true,
			},
		},
		volumePercent: DefaultVolume,
	}
}

// SetOnCompletion registers the end-of-track callback. It fires once per
// prepared song, from the audio pipeline.
func (p *Player) SetOnCompletion(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCompletion = fn
}

// SetOnBufferingUpdate registers the download-progress callback, invoked
// with a 0-100 percentage.
func (p *Player) SetOnBufferingUpdate(fn func(percent int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onBuffering = fn
}

// SetSource points the player at a stream URL. Any prior prepared song is
// discarded.
func (p *Player) SetSource(url string) error {
	if url == "" {
		return fmt.Errorf("empty source URL")
	}

	p.teardown()

	p.mu.Lock()
	p.sourceURL = url
	p.mu.Unlock()
	return nil
}

// Prepare downloads and decodes the current source. Buffering progress is
// reported through the registered callback while the download runs. On
// return the song is ready to Start.
func (p *Player) Prepare() error {
	p.mu.Lock()
	url := p.sourceURL
	onBuffering := p.onBuffering
	p.mu.Unlock()

	if url == "" {
		return fmt.Errorf("no source set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), DownloadTimeout)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	data, contentLength, err := p.download(ctx, url, onBuffering)
	if err != nil {
		return err
	}

	streamer, format, err := mp3.Decode(nopSeekCloser{bytes.NewReader(data)})
	if err != nil {
		return fmt.Errorf("failed to decode song data: %w", err)
	}

	if err := p.initSpeaker(format.SampleRate); err != nil {
		streamer.Close()
		return err
	}

	p.mu.Lock()
	p.streamer = streamer
	p.format = format
	p.contentLength = contentLength
	p.ctrl = &beep.Ctrl{Streamer: streamer, Paused: true}
	p.volume = &effects.Volume{
		Streamer: p.ctrl,
		Base:     2,
		Volume:   percentToExponent(float64(p.volumePercent)) + gainToExponent(p.gainDB),
		Silent:   p.volumePercent == 0,
	}
	p.prepared = true
	p.playing = false
	onCompletion := p.onCompletion
	volume := p.volume
	p.mu.Unlock()

	speaker.Play(beep.Seq(volume, beep.Callback(func() {
		// Invoked from the streaming goroutine with the speaker mutex
		// held. Start/Pause/Position take p.mu and then block on the
		// speaker, so touching p.mu here would invert the lock order.
		go p.finishTrack(onCompletion)
	})))

	log.Debug().Str("url", url).Int64("bytes", contentLength).Msg("Song prepared")
	return nil
}

// finishTrack marks the end of the current song and delivers the
// completion callback. Runs off the streaming goroutine.
func (p *Player) finishTrack(onCompletion func()) {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()

	if onCompletion != nil {
		onCompletion()
	}
}

// download fetches the song file, invoking progress as percent complete.
func (p *Player) download(ctx context.Context, url string, progress func(int)) ([]byte, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch song: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, 0, fmt.Errorf("song download returned status %d: %s", resp.StatusCode, resp.Status)
	}

	contentLength := resp.ContentLength
	p.mu.Lock()
	p.contentLength = contentLength
	p.mu.Unlock()

	var buf bytes.Buffer
	if contentLength > 0 {
		buf.Grow(int(contentLength))
	}

	lastPercent := -1
	chunk := make([]byte, DownloadChunkSize)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if progress != nil && contentLength > 0 {
				percent := int(int64(buf.Len()) * 100 / contentLength)
				if percent != lastPercent {
					lastPercent = percent
					progress(percent)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("song download interrupted: %w", err)
		}
	}

	if progress != nil && lastPercent < 100 {
		progress(100)
	}

	return buf.Bytes(), contentLength, nil
}

func (p *Player) initSpeaker(sampleRate beep.SampleRate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.speakerInit || sampleRate != p.format.SampleRate {
		if err := speaker.Init(sampleRate, sampleRate.N(SpeakerBufferSize)); err != nil {
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		p.format.SampleRate = sampleRate
		p.speakerInit = true
		log.Debug().Msgf("Speaker initialized at %d Hz", sampleRate)
	}
	return nil
}

// Start begins or resumes playback of the prepared song.
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.prepared || p.ctrl == nil {
		return
	}

	speaker.Lock()
	p.ctrl.Paused = false
	speaker.Unlock()
	p.playing = true
}

// Pause halts playback, keeping the song position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil {
		return
	}

	speaker.Lock()
	p.ctrl.Paused = true
	speaker.Unlock()
	p.playing = false
}

// Reset discards the prepared song and cancels any in-flight download.
func (p *Player) Reset() {
	p.teardown()
}

func (p *Player) teardown() {
	p.mu.Lock()
	cancel := p.cancel
	streamer := p.streamer
	p.cancel = nil
	p.streamer = nil
	p.ctrl = nil
	p.volume = nil
	p.prepared = false
	p.playing = false
	p.contentLength = 0
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	speaker.Clear()
	if streamer != nil {
		if err := streamer.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close streamer")
		}
	}
}

// Release frees the decode resources. The speaker device itself stays
// open for the process lifetime.
func (p *Player) Release() {
	p.teardown()
	log.Debug().Msg("Media resources released")
}

// IsPlaying reports whether audio is actively being produced.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Position returns the playback position within the current song.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.streamer == nil {
		return 0
	}
	speaker.Lock()
	pos := p.streamer.Position()
	speaker.Unlock()
	return p.format.SampleRate.D(pos)
}

// Duration returns the song length. Before the song is decoded it falls
// back to an estimate from the download size at a nominal bitrate.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.streamer != nil {
		return p.format.SampleRate.D(p.streamer.Len())
	}
	if p.contentLength > 0 {
		seconds := float64(p.contentLength*8) / float64(fallbackBitrate*1000)
		return time.Duration(seconds * float64(time.Second))
	}
	return 0
}

// SetVolume adjusts output volume as a 0-100 percentage.
func (p *Player) SetVolume(volumePercent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.volumePercent = volumePercent
	if p.volume == nil {
		return
	}

	speaker.Lock()
	p.volume.Volume = percentToExponent(float64(volumePercent)) + gainToExponent(p.gainDB)
	p.volume.Silent = volumePercent == 0
	speaker.Unlock()
}

// SetGain applies a per-song replay gain in decibels on top of the user
// volume. Takes effect on the next Prepare and immediately when a song is
// loaded.
func (p *Player) SetGain(gainDB float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gainDB < -MaxTrackGainDB {
		gainDB = -MaxTrackGainDB
	} else if gainDB > MaxTrackGainDB {
		gainDB = MaxTrackGainDB
	}
	p.gainDB = gainDB
	if p.volume == nil {
		return
	}

	speaker.Lock()
	p.volume.Volume = percentToExponent(float64(p.volumePercent)) + gainToExponent(gainDB)
	speaker.Unlock()
}

// gainToExponent converts decibels to a base-2 volume exponent.
func gainToExponent(db float64) float64 {
	if db == 0 {
		return 0
	}
	return db / (20 * math.Log10(2))
}

func percentToExponent(pct float64) float64 {
	if pct <= 0 {
		return MinVolumeDB
	}
	if pct >= 100 {
		return 0
	}

	normalized := pct / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}

type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }
