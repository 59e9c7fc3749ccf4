// Package pandora implements the Pandora JSON-RPC protocol: the partner
// and user authentication handshake, encrypted request signing, playlist
// fetch with rate-limit protection and the server fault taxonomy.
package pandora

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pandora-cli/pandora/internal/crypto"
	"github.com/pandora-cli/pandora/internal/station"
	"github.com/rs/zerolog/log"
)

const (
	rpcPath    = "/services/json/"
	apiVersion = "5"

	// MinPlaylistInterval is the client-side floor between two playlist
	// fetches for the same station token.
	MinPlaylistInterval = 60 * time.Second
)

// Poster issues raw RPC exchanges. Satisfied by *transport.Transport.
type Poster interface {
	Post(ctx context.Context, host, path string, query url.Values, body []byte, secure bool) ([]byte, error)
}

// Client is the stateful protocol client. All exported methods are safe
// for concurrent use.
type Client struct {
	tr Poster

	mu               sync.Mutex
	creds            PartnerCredentials
	codec            *crypto.Codec
	partnerAuthToken string
	partnerID        string
	userAuthToken    string
	userID           string
	syncTime         int64
	syncObtainedAt   time.Time
	stations         []station.Station
	lastPlaylist     map[string]time.Time

	now func() time.Time
}

// NewClient creates a protocol client on top of the given transport.
// PartnerLogin must be called before any other operation.
func NewClient(tr Poster) *Client {
	return &Client{
		tr:           tr,
		lastPlaylist: make(map[string]time.Time),
		now:          time.Now,
	}
}

type callOpts struct {
	encrypted bool
	needsUser bool
	secure    bool
}

type responseEnvelope struct {
	Stat    string          `json:"stat"`
	Result  json.RawMessage `json:"result"`
	Code    *int            `json:"code"`
	Message string          `json:"message"`
}

// computeSyncTime extrapolates the server-anchored timestamp from the
// value captured at partner login plus the local clock delta since.
// Callers must hold c.mu.
func (c *Client) computeSyncTime() int64 {
	return c.syncTime + int64(c.now().Sub(c.syncObtainedAt).Seconds())
}

// call builds the request envelope for method, encrypts it when required,
// and posts it with the auth identifiers as URL query parameters.
func (c *Client) call(ctx context.Context, method string, params map[string]any, opts callOpts) (json.RawMessage, error) {
	c.mu.Lock()
	if c.partnerAuthToken == "" && method != "auth.partnerLogin" {
		c.mu.Unlock()
		return nil, ErrNoPartnerSession
	}
	if opts.needsUser && c.userAuthToken == "" {
		c.mu.Unlock()
		return nil, ErrNotAuthorized
	}

	body := make(map[string]any, len(params)+2)
	for k, v := range params {
		body[k] = v
	}

	query := url.Values{}
	query.Set("method", method)
	if c.partnerAuthToken != "" {
		query.Set("partner_id", c.partnerID)
		if c.userAuthToken != "" {
			query.Set("auth_token", c.userAuthToken)
			query.Set("user_id", c.userID)
			body["userAuthToken"] = c.userAuthToken
		} else {
			query.Set("auth_token", c.partnerAuthToken)
		}
		body["syncTime"] = c.computeSyncTime()
	}

	host := c.creds.RPCHost
	codec := c.codec
	c.mu.Unlock()

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	payload := raw
	if opts.encrypted {
		payload = []byte(codec.Encrypt(string(raw)))
	}

	respBody, err := c.tr.Post(ctx, host, rpcPath, query, payload, opts.secure)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", method, ErrProtocolViolation, err)
	}

	switch envelope.Stat {
	case "ok":
		return envelope.Result, nil
	case "fail":
		if envelope.Code == nil {
			return nil, fmt.Errorf("%s: %w: fail envelope without code", method, ErrProtocolViolation)
		}
		return nil, &RPCError{Code: *envelope.Code, Message: envelope.Message}
	default:
		return nil, fmt.Errorf("%s: %w: stat %q", method, ErrProtocolViolation, envelope.Stat)
	}
}

// PartnerLogin authenticates the application itself with the fixed
// credentials for tier, replacing any previous partner session. The sync
// time base is captured from the local clock here; the server's encrypted
// sync field is deliberately not reconstructed.
func (c *Client) PartnerLogin(tier Tier) error {
	creds := CredentialsForTier(tier)

	codec, err := crypto.NewCodec(creds.EncryptKey, creds.DecryptKey)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.creds = creds
	c.codec = codec
	c.partnerAuthToken = ""
	c.partnerID = ""
	c.mu.Unlock()

	result, err := c.call(context.Background(), "auth.partnerLogin", map[string]any{
		"username":    creds.Username,
		"password":    creds.Password,
		"deviceModel": creds.DeviceModel,
		"version":     apiVersion,
		"includeUrls": true,
	}, callOpts{secure: true})
	if err != nil {
		return err
	}

	var login struct {
		PartnerAuthToken string `json:"partnerAuthToken"`
		PartnerID        string `json:"partnerId"`
	}
	if err := json.Unmarshal(result, &login); err != nil {
		return fmt.Errorf("auth.partnerLogin: %w: %v", ErrProtocolViolation, err)
	}
	if login.PartnerAuthToken == "" {
		return fmt.Errorf("auth.partnerLogin: %w: missing partnerAuthToken", ErrProtocolViolation)
	}

	now := c.now()
	c.mu.Lock()
	c.partnerAuthToken = login.PartnerAuthToken
	c.partnerID = login.PartnerID
	c.syncTime = now.Unix()
	c.syncObtainedAt = now
	c.mu.Unlock()

	log.Debug().Stringer("tier", tier).Msg("Partner login complete")
	return nil
}

// Connect performs the user login on top of a valid partner session.
// When the account's subscription tier disagrees with the selected
// partner credentials, the partner login is transparently re-run with the
// corrected tier and the login retried once before any error surfaces.
func (c *Client) Connect(username, password string) error {
	return c.withRetry("auth.userLogin", func() error {
		return c.userLogin(username, password)
	})
}

func (c *Client) userLogin(username, password string) error {
	result, err := c.call(context.Background(), "auth.userLogin", map[string]any{
		"loginType":        "user",
		"username":         username,
		"password":         password,
		"partnerAuthToken": c.PartnerAuthToken(),
	}, callOpts{encrypted: true, secure: true})
	if err != nil {
		return err
	}

	var login struct {
		UserAuthToken string `json:"userAuthToken"`
		UserID        string `json:"userId"`
		HasAudioAds   bool   `json:"hasAudioAds"`
	}
	if err := json.Unmarshal(result, &login); err != nil {
		return fmt.Errorf("auth.userLogin: %w: %v", ErrProtocolViolation, err)
	}

	accountTier := TierPremium
	if login.HasAudioAds {
		accountTier = TierStandard
	}

	c.mu.Lock()
	selectedTier := c.creds.Tier
	c.mu.Unlock()

	if accountTier != selectedTier {
		return &SubscriberTypeMismatchError{CorrectTier: accountTier}
	}

	c.mu.Lock()
	c.userAuthToken = login.UserAuthToken
	c.userID = login.UserID
	c.mu.Unlock()

	log.Debug().Str("user", username).Stringer("tier", accountTier).Msg("User login complete")
	return nil
}

// Disconnect clears the user session and the station cache. The partner
// session stays valid; outbound auth reverts to the partner token.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.userAuthToken = ""
	c.userID = ""
	c.stations = nil
	c.mu.Unlock()
	log.Debug().Msg("User session cleared")
}

// PartnerAuthToken returns the current partner token, empty when no
// partner session exists.
func (c *Client) PartnerAuthToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partnerAuthToken
}

// Authorized reports whether a user session is active.
func (c *Client) Authorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userAuthToken != ""
}

// Tier returns the tier of the currently selected partner credentials.
func (c *Client) Tier() Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.Tier
}

// GetStations fetches the listener's station list, replacing the local
// cache wholesale.
func (c *Client) GetStations(ctx context.Context) ([]station.Station, error) {
	var stations []station.Station

	err := c.withRetry("user.getStationList", func() error {
		result, err := c.call(ctx, "user.getStationList", nil, callOpts{encrypted: true, needsUser: true})
		if err != nil {
			return err
		}

		var list struct {
			Stations []struct {
				StationID      string `json:"stationId"`
				StationIDToken string `json:"stationIdToken"`
				StationName    string `json:"stationName"`
				IsQuickMix     bool   `json:"isQuickMix"`
			} `json:"stations"`
		}
		if err := json.Unmarshal(result, &list); err != nil {
			return fmt.Errorf("user.getStationList: %w: %v", ErrProtocolViolation, err)
		}

		stations = make([]station.Station, 0, len(list.Stations))
		for _, st := range list.Stations {
			stations = append(stations, station.Station{
				ID:         st.StationID,
				IDToken:    st.StationIDToken,
				Name:       st.StationName,
				IsQuickMix: st.IsQuickMix,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.stations = stations
	c.mu.Unlock()

	log.Debug().Int("count", len(stations)).Msg("Station list refreshed")
	return stations, nil
}

// CachedStations returns a copy of the last fetched station list.
func (c *Client) CachedStations() []station.Station {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]station.Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// GetPlaylist fetches the next batch of songs for a station. Requests for
// the same station token within MinPlaylistInterval of the previous
// successful fetch are rejected with a *RateLimitError without touching
// the network.
func (c *Client) GetPlaylist(ctx context.Context, stationToken string) ([]station.Song, error) {
	c.mu.Lock()
	if last, ok := c.lastPlaylist[stationToken]; ok {
		if elapsed := c.now().Sub(last); elapsed < MinPlaylistInterval {
			c.mu.Unlock()
			return nil, &RateLimitError{
				StationToken: stationToken,
				RetryAfterMs: (MinPlaylistInterval - elapsed).Milliseconds(),
			}
		}
	}
	tier := c.creds.Tier
	c.mu.Unlock()

	var songs []station.Song

	err := c.withRetry("station.getPlaylist", func() error {
		result, err := c.call(ctx, "station.getPlaylist", map[string]any{
			"stationToken": stationToken,
		}, callOpts{encrypted: true, needsUser: true, secure: true})
		if err != nil {
			return err
		}

		parsed, err := parsePlaylist(result, tier)
		if err != nil {
			return err
		}
		songs = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lastPlaylist[stationToken] = c.now()
	c.mu.Unlock()

	log.Debug().Int("count", len(songs)).Str("station", stationToken).Msg("Playlist fetched")
	return songs, nil
}

// Rate submits thumbs-up or thumbs-down feedback for a song. Errors are
// surfaced to the caller; there is no local retry beyond the standard
// auth-token recovery, so feedback is never submitted twice.
func (c *Client) Rate(ctx context.Context, song *station.Song, isPositive bool) error {
	return c.withAuthRetry("station.addFeedback", func() error {
		_, err := c.call(ctx, "station.addFeedback", map[string]any{
			"trackToken": song.TrackToken,
			"isPositive": isPositive,
		}, callOpts{encrypted: true, needsUser: true})
		return err
	})
}

type playlistItem struct {
	TrackToken  string `json:"trackToken"`
	SongName    string `json:"songName"`
	ArtistName  string `json:"artistName"`
	AlbumName   string `json:"albumName"`
	AlbumArtURL string `json:"albumArtUrl"`
	TrackGain   string `json:"trackGain"`
	SongRating  int    `json:"songRating"`
	StationID   string `json:"stationId"`
	AdToken     string `json:"adToken"`
	AudioURLMap map[string]struct {
		Bitrate  string `json:"bitrate"`
		Encoding string `json:"encoding"`
		AudioURL string `json:"audioUrl"`
	} `json:"audioUrlMap"`
}

func parsePlaylist(result json.RawMessage, tier Tier) ([]station.Song, error) {
	var payload struct {
		Items []playlistItem `json:"items"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("station.getPlaylist: %w: %v", ErrProtocolViolation, err)
	}

	songs := make([]station.Song, 0, len(payload.Items))
	for _, item := range payload.Items {
		// Ad slots come back as items with an adToken and no track
		if item.TrackToken == "" {
			continue
		}

		gain, _ := strconv.ParseFloat(item.TrackGain, 64)
		song := station.Song{
			TrackToken:  item.TrackToken,
			Title:       item.SongName,
			Artist:      item.ArtistName,
			Album:       item.AlbumName,
			AlbumArtURL: item.AlbumArtURL,
			FileGain:    gain,
			Rating:      item.SongRating,
			StationID:   item.StationID,
			Audio:       rankAudioURLs(item, tier),
		}
		songs = append(songs, song)
	}
	return songs, nil
}

// rankAudioURLs converts the response's audioUrlMap into an ordered
// candidate list. The MP3 192 stream is subscriber-gated: it is only
// offered when premium partner credentials are active.
func rankAudioURLs(item playlistItem, tier Tier) []station.AudioURL {
	var urls []station.AudioURL
	for _, entry := range item.AudioURLMap {
		if entry.AudioURL == "" {
			continue
		}
		bitrate, err := strconv.Atoi(entry.Bitrate)
		if err != nil {
			continue
		}

		format, ok := formatFor(entry.Encoding, bitrate)
		if !ok {
			continue
		}
		if format == station.MP3192 && tier != TierPremium {
			continue
		}

		urls = append(urls, station.AudioURL{Format: format, Bitrate: bitrate, URL: entry.AudioURL})
	}

	sort.Slice(urls, func(i, j int) bool {
		return urls[i].Format < urls[j].Format
	})
	return urls
}

func formatFor(encoding string, bitrate int) (station.AudioFormat, bool) {
	switch {
	case encoding == "aacplus" && bitrate <= 32:
		return station.AAC32, true
	case encoding == "aacplus":
		return station.AAC64, true
	case encoding == "mp3" && bitrate >= 192:
		return station.MP3192, true
	case encoding == "mp3":
		return station.MP3128, true
	default:
		return 0, false
	}
}
