package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pandora-cli/pandora/internal/bandwidth"
	"github.com/pandora-cli/pandora/internal/config"
	"github.com/pandora-cli/pandora/internal/controller"
	"github.com/pandora-cli/pandora/internal/pandora"
	"github.com/pandora-cli/pandora/internal/player"
	"github.com/pandora-cli/pandora/internal/service"
	"github.com/pandora-cli/pandora/internal/station"
	"github.com/pandora-cli/pandora/internal/store"
	"github.com/pandora-cli/pandora/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	versionFlag = flag.Bool("version", false, "Show version information")
	debugFlag   = flag.Bool("debug", false, "Enable debug logging")
	stationFlag = flag.String("station", "", "Station ID to play (defaults to the last played station)")
)

// netCheck treats the client as connected whenever a partner session
// exists; detailed reachability probing lives outside the core.
type netCheck struct{}

func (netCheck) IsConnected() bool { return true }

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debugFlag {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Could not load config, using defaults")
	}

	if cfg.Username == "" {
		fmt.Fprintln(os.Stderr, "No username configured. Set `username` in your config file.")
		if path, pathErr := config.GetConfigPath(); pathErr == nil {
			fmt.Fprintf(os.Stderr, "Config file: %s\n", path)
		}
		os.Exit(1)
	}

	password := os.Getenv("PANDORA_PASSWORD")
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			password = strings.TrimSpace(scanner.Text())
		}
	}
	if password == "" {
		fmt.Fprintln(os.Stderr, "A password is required (or set PANDORA_PASSWORD).")
		os.Exit(1)
	}

	tier := pandora.TierStandard
	if cfg.PremiumAccount {
		tier = pandora.TierPremium
	}

	client := pandora.NewClient(transport.New())
	if err := client.PartnerLogin(tier); err != nil {
		log.Fatal().Err(err).Msg("Partner login failed")
	}
	if err := client.Connect(cfg.Username, password); err != nil {
		exitOnLoginError(err)
	}

	// Remember a corrected tier so the next start skips the mismatch loop
	cfg.PremiumAccount = client.Tier() == pandora.TierPremium

	stations := loadStations(client)
	if len(stations) == 0 {
		log.Fatal().Msg("No stations available for this account")
	}

	current := pickStation(stations, *stationFlag, cfg.LastStationID)
	fmt.Printf("Playing station: %s\n", current.Name)

	media := player.NewPlayer()
	media.SetVolume(cfg.Volume)
	estimator := bandwidth.NewEstimator()

	ctrl := controller.New(media, netCheck{}, estimator)

	minQ, maxQ := cfg.QualityRange()
	if err := ctrl.SetQualityRange(minQ, maxQ); err != nil {
		log.Warn().Err(err).Msg("Invalid quality range in config, keeping defaults")
	}

	if err := ctrl.SetListeners(controller.Listeners{
		OnNewSong: func(s *station.Song) {
			fmt.Printf("♪ %s — %s (%s)\n", s.Artist, s.Title, s.Album)
		},
		OnPlaybackHalted: func() {
			fmt.Println("⏸ paused")
		},
		OnPlaybackContinued: func() {
			fmt.Println("▶ playing")
		},
	}); err != nil {
		log.Fatal().Err(err).Msg("Could not install listeners")
	}

	ctrl.Reset(current.IDToken, client)
	if err := ctrl.Start(); err != nil {
		log.Fatal().Err(err).Msg("Could not start playback")
	}
	ctrl.Play()

	cfg.LastStationID = current.ID
	if err := cfg.Save(); err != nil {
		log.Warn().Err(err).Msg("Could not save config")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		commandLoop(ctrl, client)
		close(done)
	}()

	select {
	case <-sigChan:
	case <-done:
	}

	ctrl.Stop()
	client.Disconnect()
	log.Debug().Msg("Shut down cleanly")
}

func exitOnLoginError(err error) {
	switch pandora.Classify(err) {
	case pandora.ClassInvalidCredentials:
		fmt.Fprintln(os.Stderr, "Login failed: wrong username or password.")
	case pandora.ClassUnsupportedAPI:
		fmt.Fprintln(os.Stderr, "Login failed: this client version is no longer supported, please update.")
	default:
		fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
	}
	os.Exit(1)
}

// loadStations refreshes the station list from the server through the
// station service, which falls back to the local cache when offline.
func loadStations(client *pandora.Client) []station.Station {
	var cache service.StationCache
	if path, err := store.DefaultPath(); err == nil {
		if st, openErr := store.Open(path); openErr != nil {
			log.Warn().Err(openErr).Msg("Station cache unavailable")
		} else {
			defer st.Close()
			cache = st
		}
	}

	svc := service.NewStationService(client, cache)
	stations, err := svc.Refresh(context.Background())
	if err != nil {
		if len(stations) > 0 {
			log.Warn().Err(err).Msg("Using locally cached stations")
			return stations
		}
		log.Warn().Err(err).Msg("Could not fetch stations")
		return nil
	}
	return stations
}

func pickStation(stations []station.Station, wantID, lastID string) station.Station {
	for _, st := range stations {
		if wantID != "" && st.ID == wantID {
			return st
		}
	}
	for _, st := range stations {
		if lastID != "" && st.ID == lastID {
			return st
		}
	}
	return stations[0]
}

// commandLoop reads single-letter commands from stdin until EOF or quit.
func commandLoop(ctrl *controller.Controller, client *pandora.Client) {
	fmt.Println("Commands: [p]lay/pause toggle  [n]ext  [+] love  [-] ban  [q]uit")

	paused := false
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "p":
			if paused {
				ctrl.Play()
			} else {
				ctrl.Pause()
			}
			paused = !paused
		case "n":
			ctrl.Skip()
		case "+", "-":
			rate(ctrl, client, strings.TrimSpace(scanner.Text()) == "+")
		case "q":
			return
		case "":
		default:
			fmt.Println("Commands: [p]lay/pause toggle  [n]ext  [+] love  [-] ban  [q]uit")
		}
	}
}

func rate(ctrl *controller.Controller, client *pandora.Client, positive bool) {
	song := ctrl.CurrentSong()
	if song == nil {
		fmt.Println("Nothing playing yet.")
		return
	}
	if err := client.Rate(context.Background(), song, positive); err != nil {
		var rpcErr *pandora.RPCError
		if errors.As(err, &rpcErr) {
			fmt.Printf("Could not rate song: %s\n", rpcErr.Message)
			return
		}
		fmt.Printf("Could not rate song: %v\n", err)
		return
	}
	if positive {
		fmt.Printf("Loved: %s — %s\n", song.Artist, song.Title)
	} else {
		fmt.Printf("Banned: %s — %s (skipping)\n", song.Artist, song.Title)
		ctrl.Skip()
	}
}
