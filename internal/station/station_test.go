package station

import (
	"testing"
)

func TestAudioFormatString(t *testing.T) {
	tests := []struct {
		format   AudioFormat
		expected string
	}{
		{AAC32, "AAC 32kbps"},
		{AAC64, "AAC 64kbps"},
		{MP3128, "MP3 128kbps"},
		{MP3192, "MP3 192kbps"},
		{AudioFormat(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.format.String(); got != tt.expected {
				t.Errorf("AudioFormat(%d).String() = %q, want %q", tt.format, got, tt.expected)
			}
		})
	}
}

func TestAudioFormatOrdering(t *testing.T) {
	if !(AAC32 < AAC64 && AAC64 < MP3128 && MP3128 < MP3192) {
		t.Error("Audio formats should be ordered AAC32 < AAC64 < MP3128 < MP3192")
	}
}

func TestValidRange(t *testing.T) {
	tests := []struct {
		name     string
		min, max AudioFormat
		expected bool
	}{
		{"full range", AAC32, MP3192, true},
		{"single format", MP3128, MP3128, true},
		{"inverted", MP3192, AAC32, false},
		{"min above max", MP3128, AAC64, false},
		{"out of bounds max", AAC32, AudioFormat(10), false},
		{"negative min", AudioFormat(-1), MP3128, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidRange(tt.min, tt.max); got != tt.expected {
				t.Errorf("ValidRange(%v, %v) = %v, want %v", tt.min, tt.max, got, tt.expected)
			}
		})
	}
}

func TestBestAudioURL(t *testing.T) {
	song := Song{
		TrackToken: "tok",
		Audio: []AudioURL{
			{Format: AAC32, Bitrate: 32, URL: "http://example.com/aac32"},
			{Format: AAC64, Bitrate: 64, URL: "http://example.com/aac64"},
			{Format: MP3128, Bitrate: 128, URL: "http://example.com/mp3128"},
			{Format: MP3192, Bitrate: 192, URL: "http://example.com/mp3192"},
		},
	}

	tests := []struct {
		name     string
		min, max AudioFormat
		expected string
	}{
		{"full range picks highest", AAC32, MP3192, "http://example.com/mp3192"},
		{"capped at mp3128", AAC32, MP3128, "http://example.com/mp3128"},
		{"single format", AAC64, AAC64, "http://example.com/aac64"},
		{"floor above all but one", MP3192, MP3192, "http://example.com/mp3192"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := song.BestAudioURL(tt.min, tt.max); got != tt.expected {
				t.Errorf("BestAudioURL(%v, %v) = %q, want %q", tt.min, tt.max, got, tt.expected)
			}
		})
	}
}

func TestBestAudioURLNoCandidates(t *testing.T) {
	song := Song{
		Audio: []AudioURL{
			{Format: AAC32, Bitrate: 32, URL: "http://example.com/aac32"},
		},
	}

	if got := song.BestAudioURL(MP3128, MP3192); got != "" {
		t.Errorf("BestAudioURL() = %q, want empty string when no candidate fits", got)
	}

	empty := Song{}
	if got := empty.BestAudioURL(AAC32, MP3192); got != "" {
		t.Errorf("BestAudioURL() on empty song = %q, want empty string", got)
	}
	if empty.HasAudio() {
		t.Error("HasAudio() should be false for a song without stream URLs")
	}
}
