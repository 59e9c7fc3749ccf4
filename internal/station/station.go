// Package station defines the data structures for Pandora stations and songs.
package station

// AudioFormat identifies one of the stream encodings Pandora serves,
// ordered from lowest to highest quality.
type AudioFormat int

const (
	AAC32 AudioFormat = iota
	AAC64
	MP3128
	MP3192
)

func (f AudioFormat) String() string {
	switch f {
	case AAC32:
		return "AAC 32kbps"
	case AAC64:
		return "AAC 64kbps"
	case MP3128:
		return "MP3 128kbps"
	case MP3192:
		return "MP3 192kbps"
	default:
		return "UNKNOWN"
	}
}

// Bitrate returns the nominal bitrate in kbps for the format.
func (f AudioFormat) Bitrate() int {
	switch f {
	case AAC32:
		return 32
	case AAC64:
		return 64
	case MP3128:
		return 128
	case MP3192:
		return 192
	default:
		return 0
	}
}

// ValidRange reports whether min..max is a usable quality range.
func ValidRange(min, max AudioFormat) bool {
	return min >= AAC32 && max <= MP3192 && min <= max
}

// AudioURL is one candidate stream for a song.
type AudioURL struct {
	Format  AudioFormat
	Bitrate int
	URL     string
}

// Station is an immutable snapshot of one programmed radio station.
type Station struct {
	ID         string
	IDToken    string
	Name       string
	IsQuickMix bool
}

// Rating values mirror the server's song feedback field.
const (
	RatingNone = 0
	RatingLove = 1
	RatingBan  = -1
)

// Song is a single playable track from a playlist fetch. Songs are
// immutable once constructed; Audio is sorted from lowest to highest
// quality by the protocol client.
type Song struct {
	TrackToken  string
	Title       string
	Artist      string
	Album       string
	AlbumArtURL string
	FileGain    float64
	Rating      int
	StationID   string
	Audio       []AudioURL
}

// BestAudioURL returns the highest-quality candidate whose format falls
// within [min, max]. Returns the empty string when no candidate fits.
func (s *Song) BestAudioURL(min, max AudioFormat) string {
	best := ""
	bestFormat := AudioFormat(-1)
	for _, a := range s.Audio {
		if a.Format < min || a.Format > max {
			continue
		}
		if a.Format > bestFormat {
			bestFormat = a.Format
			best = a.URL
		}
	}
	return best
}

// HasAudio reports whether the song carries at least one stream URL.
func (s *Song) HasAudio() bool {
	return len(s.Audio) > 0
}
