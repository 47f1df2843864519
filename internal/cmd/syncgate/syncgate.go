// Package syncgate parses sync gateway command flags and composes the
// transport entrypoint.
package syncgate

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/campuslink/campuslink/internal/platform/cmd"
	"github.com/campuslink/campuslink/internal/realtime/session"
	mentorshipdomain "github.com/campuslink/campuslink/internal/services/mentorship/domain"
	mentorshipsqlite "github.com/campuslink/campuslink/internal/services/mentorship/storage/sqlite"
	profilesdomain "github.com/campuslink/campuslink/internal/services/profiles/domain"
	profilesqlite "github.com/campuslink/campuslink/internal/services/profiles/storage/sqlite"
	server "github.com/campuslink/campuslink/internal/services/syncgate/app"
)

// Config holds sync gateway command configuration. Token verification keys
// are loaded separately from the CAMPUSLINK_SESSION_* environment.
type Config struct {
	HTTPAddr     string `env:"CAMPUSLINK_SYNCGATE_HTTP_ADDR" envDefault:":8090"`
	ProfilesDB   string `env:"CAMPUSLINK_PROFILES_DB_PATH" envDefault:"profiles.db"`
	MentorshipDB string `env:"CAMPUSLINK_MENTORSHIP_DB_PATH" envDefault:"mentorship.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "sync gateway HTTP listen address")
	fs.StringVar(&cfg.ProfilesDB, "profiles-db", cfg.ProfilesDB, "profiles sqlite database path")
	fs.StringVar(&cfg.MentorshipDB, "mentorship-db", cfg.MentorshipDB, "mentorship sqlite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the sync gateway and serves the push transport together with the
// domain services whose writes feed it.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSyncGate, func(context.Context) error {
		verifier, err := session.LoadVerifierConfigFromEnv(nil)
		if err != nil {
			return fmt.Errorf("load session verifier: %w", err)
		}

		profileStore, err := profilesqlite.Open(cfg.ProfilesDB)
		if err != nil {
			return fmt.Errorf("open profiles store: %w", err)
		}
		defer profileStore.Close()

		requestStore, err := mentorshipsqlite.Open(cfg.MentorshipDB)
		if err != nil {
			return fmt.Errorf("open mentorship store: %w", err)
		}
		defer requestStore.Close()

		// The broadcaster is the publisher for both services, so every write
		// accepted through the gateway's API fans out to subscribed channels.
		wire := func(broadcaster *server.Broadcaster) (server.Services, error) {
			return server.Services{
				Profiles:   profilesdomain.NewService(profileStore, broadcaster, nil),
				Mentorship: mentorshipdomain.NewService(requestStore, broadcaster, nil, nil),
			}, nil
		}

		if err := server.Run(ctx, server.Config{
			HTTPAddr: cfg.HTTPAddr,
			Verifier: verifier,
		}, wire); err != nil {
			return fmt.Errorf("serve syncgate: %w", err)
		}
		return nil
	})
}
