// Command hundy-bot is the community bot entrypoint. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the document store (file, postgres or redis) and seeds missing documents.
//   - Builds moderation, xp, tickets, voice sessions and Twitch verification.
//   - Connects to Discord and serves events until shutdown.
//   - Exposes an ops HTTP server with /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/hundy-bot/account"
	"github.com/onnwee/hundy-bot/bot"
	"github.com/onnwee/hundy-bot/config"
	"github.com/onnwee/hundy-bot/crypto"
	"github.com/onnwee/hundy-bot/moderation"
	"github.com/onnwee/hundy-bot/server"
	"github.com/onnwee/hundy-bot/store"
	"github.com/onnwee/hundy-bot/telemetry"
	"github.com/onnwee/hundy-bot/ticket"
	"github.com/onnwee/hundy-bot/twitchapi"
	"github.com/onnwee/hundy-bot/verify"
	"github.com/onnwee/hundy-bot/voice"
	"github.com/onnwee/hundy-bot/xp"
	"github.com/onnwee/hundy-bot/youtubeapi"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	dataDir := flag.String("data-dir", "", "directory of the file store (overrides DATA_DIR)")
	backend := flag.String("store", "", "store backend: file|postgres|redis (overrides STORE_BACKEND)")
	httpAddr := flag.String("http-addr", "", "ops server listen address (overrides HTTP_ADDR)")
	flag.Parse()

	// Local dev convenience only; production relies on real env.
	_ = godotenv.Load(*envFile)
	setupLogging()

	if *backend != "" {
		_ = os.Setenv("STORE_BACKEND", *backend)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Store.DataDir = *dataDir
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if err := cfg.ValidateDiscord(); err != nil {
		slog.Error("discord config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("hundy-bot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("exiting", slog.Any("err", err))
		stop()
		shutdown()
		os.Exit(1)
	}
	slog.Info("shut down cleanly")
}

// setupLogging selects level and format from LOG_LEVEL and LOG_FORMAT.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("failed to close store", slog.Any("err", err))
		}
	}()
	if err := st.Seed(ctx); err != nil {
		return err
	}

	b, err := bot.New(cfg.Discord.Token, cfg.Discord.ClientID, cfg.Discord.GuildID)
	if err != nil {
		return err
	}
	gw := b.Gateway()

	words, err := moderation.LoadBannedWords(ctx, st)
	if err != nil {
		slog.Warn("banned words unavailable, filtering links and attachments only", slog.Any("err", err))
	}
	filter := moderation.NewFilter(words, cfg.Moderation.SpamInterval)
	slog.Info("banned words loaded", slog.Int("count", len(words)))

	tickets := ticket.NewRegistry(st, gw, ticket.Options{
		StaffRoleIDs: []string{cfg.Roles.StaffID},
		CategoryID:   cfg.Channels.TicketGroup,
		CloseDelay:   cfg.TicketCloseDelay,
	})
	ledger := xp.NewLedger(st, gw, tickets)
	voices := voice.NewManager(st, gw, ledger, filter, voice.Options{HubChannelID: cfg.Channels.VoiceMenu})

	h := &bot.Handlers{
		Moderator: moderation.NewModerator(filter, gw),
		Ledger:    ledger,
		Voice:     voices,
		Tickets:   tickets,
		Platform:  gw,
		Config:    cfg,
	}

	var yt *youtubeapi.Service
	if cfg.YouTubeEnabled() {
		if yt, err = youtubeapi.New(ctx, cfg.YouTube.APIKey, cfg.YouTube.ChannelID); err != nil {
			slog.Warn("youtube disabled", slog.Any("err", err))
		} else {
			h.Videos = yt
		}
	}

	presence, err := setupTwitch(ctx, cfg, st, gw, h)
	if err != nil {
		return err
	}
	if presence != nil && yt != nil {
		presence.YouTube = yt
	}

	handler := server.NewRouter(ctx, server.Deps{
		Store:         st,
		XP:            ledger,
		OpenTickets:   tickets.OpenCount,
		VoiceSessions: voices.ActiveCount,
		Connected:     b.Connected,
		Admin:         cfg.Admin,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx, h, presence) })
	g.Go(func() error { return server.Start(gctx, cfg.HTTPAddr, handler) })
	return g.Wait()
}

// setupTwitch wires verification and presence when Helix credentials are
// present. The broadcaster id is resolved from TWITCH_CHANNEL when unset.
func setupTwitch(ctx context.Context, cfg *config.Config, st *store.Store, gw *bot.Gateway, h *bot.Handlers) (*bot.Presence, error) {
	if cfg.Twitch.ClientID == "" || cfg.Twitch.ClientSecret == "" {
		slog.Info("twitch features disabled (missing client credentials)")
		return nil, nil
	}
	helix := &twitchapi.HelixClient{
		AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.Twitch.ClientID, ClientSecret: cfg.Twitch.ClientSecret},
		ClientID:       cfg.Twitch.ClientID,
	}
	if cfg.Twitch.BroadcasterID == "" && cfg.Twitch.Channel != "" {
		lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		id, err := helix.GetUserID(lctx, cfg.Twitch.Channel)
		cancel()
		if err != nil {
			slog.Warn("broadcaster lookup failed", slog.String("channel", cfg.Twitch.Channel), slog.Any("err", err))
		}
		cfg.Twitch.BroadcasterID = id
	}
	if err := cfg.ValidateTwitch(); err != nil {
		slog.Warn("twitch features disabled", slog.Any("err", err))
		return nil, nil
	}

	var enc crypto.Encryptor
	if cfg.EncryptionKey != "" {
		aes, err := crypto.NewAESEncryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		enc = aes
	} else {
		slog.Warn("ENCRYPTION_KEY not set, linked tokens are read as stored")
	}

	h.Verifier = verify.New(account.NewLinker(st, enc), helix, gw, verify.Options{
		BroadcasterID:    cfg.Twitch.BroadcasterID,
		SubscriberRoleID: cfg.Roles.SubscriberID,
		FollowerRoleName: cfg.Roles.FollowerName,
		LinkBaseURL:      cfg.OAuthBaseURL,
	})
	login := cfg.Twitch.Channel
	if login == "" {
		login = "J2hundred"
	}
	return &bot.Presence{
		Streams:       helix,
		Status:        gw,
		Platform:      gw,
		BroadcasterID: cfg.Twitch.BroadcasterID,
		Login:         login,
		LiveChannelID: cfg.Channels.Live,
		Interval:      cfg.PresenceInterval,
	}, nil
}
