package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pandora-cli/pandora/internal/station"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Volume != DefaultVolume {
		t.Errorf("DefaultConfig().Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}

	if cfg.LastStationID != "" {
		t.Errorf("DefaultConfig().LastStationID = %q, want empty string", cfg.LastStationID)
	}

	if !cfg.ResumeOnHangup {
		t.Error("DefaultConfig().ResumeOnHangup should be true")
	}

	min, max := cfg.QualityRange()
	if min != station.AAC32 || max != station.MP3192 {
		t.Errorf("DefaultConfig() quality range = %v..%v, want full range", min, max)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := &Config{
		Username:       "listener@example.com",
		PremiumAccount: true,
		MinQuality:     "aac64",
		MaxQuality:     "mp3192",
		LastStationID:  "12345",
		Volume:         85,
	}

	err := testCfg.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, ConfigDir, ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Volume != testCfg.Volume {
		t.Errorf("Load().Volume = %d, want %d", loadedCfg.Volume, testCfg.Volume)
	}

	if loadedCfg.Username != testCfg.Username {
		t.Errorf("Load().Username = %q, want %q", loadedCfg.Username, testCfg.Username)
	}

	if loadedCfg.LastStationID != testCfg.LastStationID {
		t.Errorf("Load().LastStationID = %q, want %q", loadedCfg.LastStationID, testCfg.LastStationID)
	}

	if !loadedCfg.PremiumAccount {
		t.Error("Load().PremiumAccount should be true")
	}

	min, max := loadedCfg.QualityRange()
	if min != station.AAC64 || max != station.MP3192 {
		t.Errorf("Load() quality range = %v..%v, want aac64..mp3192", min, max)
	}
}

func TestLoadNonExistentConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Volume != DefaultVolume {
		t.Errorf("Load() without a config file should return defaults, got volume %d", cfg.Volume)
	}
}

func TestLoadClampsVolume(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, ConfigDir, ConfigFileName)
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, []byte("volume: 250\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Volume != MaxVolume {
		t.Errorf("Load().Volume = %d, want clamped to %d", cfg.Volume, MaxVolume)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, ConfigDir, ConfigFileName)
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, []byte("{not yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err == nil {
		t.Error("Load() should report the parse failure")
	}
	if cfg == nil || cfg.Volume != DefaultVolume {
		t.Error("Load() should fall back to defaults on parse failure")
	}
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected station.AudioFormat
		wantErr  bool
	}{
		{"aac32", "aac32", station.AAC32, false},
		{"aac64", "aac64", station.AAC64, false},
		{"mp3128", "mp3128", station.MP3128, false},
		{"mp3192", "mp3192", station.MP3192, false},
		{"unknown", "flac", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuality(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseQuality(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("ParseQuality(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestQualityRangeFallsBackOnInvalid(t *testing.T) {
	cfg := &Config{MinQuality: "mp3192", MaxQuality: "aac32"}

	min, max := cfg.QualityRange()
	if min != station.AAC32 || max != station.MP3192 {
		t.Errorf("inverted range should fall back to defaults, got %v..%v", min, max)
	}
}

func TestClampVolume(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{-5, MinVolume},
		{0, 0},
		{50, 50},
		{100, 100},
		{150, MaxVolume},
	}

	for _, tt := range tests {
		if got := ClampVolume(tt.input); got != tt.expected {
			t.Errorf("ClampVolume(%d) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}
