// Package app assembles the service: storage, domain managers, the HTTP
// surface, and the serve loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/snehasaisneha/staticauth/internal/access"
	"github.com/snehasaisneha/staticauth/internal/httpapi"
	"github.com/snehasaisneha/staticauth/internal/notifier"
	"github.com/snehasaisneha/staticauth/internal/otp"
	"github.com/snehasaisneha/staticauth/internal/passkey"
	"github.com/snehasaisneha/staticauth/internal/platform/config"
	"github.com/snehasaisneha/staticauth/internal/session"
	"github.com/snehasaisneha/staticauth/internal/storage/sqlite"
	"github.com/snehasaisneha/staticauth/internal/user"
)

// minSecretBytes is the floor for the cookie signing secret.
const minSecretBytes = 32

// ceremonyCleanupInterval paces expired passkey ceremony pruning.
const ceremonyCleanupInterval = 5 * time.Minute

// Config holds service-level settings. Component packages load their own
// configuration from the same environment.
type Config struct {
	SecretKey   string   `env:"STATICAUTH_SECRET_KEY"`
	DBPath      string   `env:"STATICAUTH_DB_PATH"      envDefault:"data/staticauth.db"`
	HTTPAddr    string   `env:"STATICAUTH_HTTP_ADDR"    envDefault:":8080"`
	AdminEmails []string `env:"STATICAUTH_ADMIN_EMAILS" envSeparator:","`
}

// LoadConfigFromEnv loads service configuration.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "staticauth.db")
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = ":8080"
	}
	return cfg
}

// Server hosts the assembled service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *sqlite.Store
	passkeys   *passkey.Manager
}

// New assembles a server from configuration.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if len(cfg.SecretKey) < minSecretBytes {
		return nil, fmt.Errorf("STATICAUTH_SECRET_KEY must be at least %d bytes", minSecretBytes)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	server, err := build(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return server, nil
}

func build(ctx context.Context, cfg Config, store *sqlite.Store) (*Server, error) {
	mailer, err := buildNotifier(ctx)
	if err != nil {
		return nil, err
	}

	sessionCfg := session.LoadConfigFromEnv()
	sessions, err := session.NewManager(store, store, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("build session manager: %w", err)
	}
	cookies, err := session.NewCookieCodec([]byte(cfg.SecretKey), sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("build cookie codec: %w", err)
	}

	otpService, err := otp.NewService(store, mailer, otp.LoadConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("build otp service: %w", err)
	}

	passkeys, err := passkey.NewManager(store, store, passkey.LoadConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("build passkey manager: %w", err)
	}

	engine, err := access.NewEngine(store, store, store, mailer)
	if err != nil {
		return nil, fmt.Errorf("build access engine: %w", err)
	}

	api, err := httpapi.NewServer(store, store, sessions, cookies, otpService, passkeys, engine, mailer, httpapi.LoadConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("build http server: %w", err)
	}

	if err := seedAdmins(ctx, store, cfg.AdminEmails); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}

	return &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: api.Routes()},
		store:      store,
		passkeys:   passkeys,
	}, nil
}

// buildNotifier selects the outbound email transport from configuration.
func buildNotifier(ctx context.Context) (*notifier.Notifier, error) {
	cfg := notifier.LoadConfigFromEnv()
	var sender notifier.Sender
	switch cfg.Provider {
	case notifier.ProviderSES:
		sesSender, err := notifier.NewSESSender(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("build ses sender: %w", err)
		}
		sender = sesSender
	case notifier.ProviderSMTP:
		smtpSender, err := notifier.NewSMTPSender(cfg)
		if err != nil {
			return nil, fmt.Errorf("build smtp sender: %w", err)
		}
		sender = smtpSender
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
	return notifier.New(sender, "StaticAuth")
}

// seedAdmins guarantees configured admin accounts exist and hold the admin
// flag. Seeded accounts are protected from deletion.
func seedAdmins(ctx context.Context, store *sqlite.Store, emails []string) error {
	for _, raw := range emails {
		email, err := user.NormalizeEmail(raw)
		if err != nil {
			return fmt.Errorf("seed admin %q: %w", raw, err)
		}
		existing, err := store.GetUserByEmail(ctx, email)
		if err == nil {
			if existing.IsAdmin && existing.IsSeeded && existing.Status == user.StatusApproved {
				continue
			}
			existing.IsAdmin = true
			existing.IsSeeded = true
			existing.Status = user.StatusApproved
			existing.UpdatedAt = time.Now().UTC()
			if err := store.PutUser(ctx, existing); err != nil {
				return fmt.Errorf("promote seed admin %s: %w", email, err)
			}
			continue
		}

		account, err := user.Create(user.CreateInput{
			Email:   email,
			Status:  user.StatusApproved,
			IsAdmin: true,
		}, nil, nil)
		if err != nil {
			return fmt.Errorf("create seed admin %s: %w", email, err)
		}
		account.IsSeeded = true
		if err := store.PutUser(ctx, account); err != nil {
			return fmt.Errorf("store seed admin %s: %w", email, err)
		}
		log.Printf("seeded admin account %s", email)
	}
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run assembles and serves until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve blocks until the server stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.startCeremonyCleanup(serveCtx)

	log.Printf("http server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// startCeremonyCleanup prunes expired passkey ceremonies in the background
// so abandoned flows do not accumulate.
func (s *Server) startCeremonyCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(ceremonyCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.passkeys.PruneExpiredCeremonies(ctx); err != nil {
					log.Printf("prune passkey ceremonies: %v", err)
				}
			}
		}
	}()
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close store: %v", err)
	}
}
