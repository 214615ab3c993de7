package server

import (
	"context"
	"fmt"
	"time"

	"github.com/couuas/serv00-ghost/internal/auth"
	"github.com/couuas/serv00-ghost/internal/config"
	"github.com/couuas/serv00-ghost/internal/logging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options configures a Server. Zero durations fall back to the protocol
// defaults; a negative LoginFailDelay disables the pause. Now and Journal
// may be nil. Without TrustedProxies the client IP is the socket peer.
type Options struct {
	Secret          string
	Verifier        CredentialVerifier
	Sessions        Sessions
	OpenDashboard   bool
	OnlineThreshold time.Duration
	ProxyTimeout    time.Duration
	LoginFailDelay  time.Duration
	LogMaxBytes     int
	TrustedProxies  []string
	Journal         *Journal
	Now             func() time.Time
	Logger          *zap.Logger
}

// Server owns all coordinator state. Nothing lives in package globals, so
// tests can run isolated instances side by side.
type Server struct {
	registry  *Registry
	mailbox   *Mailbox
	logs      *LogStore
	inventory *InventoryStore
	limiter   *RateLimiter
	machine   *auth.MachineAuth
	human     *HumanAuth
	forwarder *Forwarder
	journal   *Journal
	metrics   *Metrics
	logger    *zap.Logger

	secret         string
	failDelay      time.Duration
	trustedProxies []string
}

// New builds a Server from opts.
func New(opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	threshold := opts.OnlineThreshold
	if threshold <= 0 {
		threshold = 30 * time.Second
	}
	failDelay := opts.LoginFailDelay
	if failDelay == 0 {
		failDelay = time.Second
	}
	verifier := opts.Verifier
	if verifier == nil {
		verifier = PlainVerifier{}
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = PasswordSessions{Verifier: verifier}
	}

	registry := NewRegistry(threshold, now)
	return &Server{
		registry:  registry,
		mailbox:   NewMailbox(),
		logs:      NewLogStore(opts.LogMaxBytes, now),
		inventory: NewInventoryStore(now),
		limiter:   NewRateLimiter(now),
		machine:   auth.NewMachineAuth(opts.Secret),
		human:     NewHumanAuth(verifier, sessions, opts.OpenDashboard),
		forwarder: NewForwarder(registry, opts.Secret, opts.ProxyTimeout, log.Named("proxy")),
		journal:   opts.Journal,
		metrics:   NewMetrics(registry),
		logger:    log,
		secret:    opts.Secret,
		failDelay: failDelay,

		trustedProxies: opts.TrustedProxies,
	}
}

// NewFromConfig builds a Server and its journal from the loaded config.
func NewFromConfig(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if err := cfg.ValidateMaster(); err != nil {
		return nil, err
	}

	var verifier CredentialVerifier
	switch cfg.PasswordHash {
	case config.PasswordBcrypt:
		verifier = BcryptVerifier{Hash: []byte(cfg.AuthPassword)}
	default:
		verifier = PlainVerifier{Password: cfg.AuthPassword}
	}

	var sessions Sessions
	switch cfg.SessionMode {
	case config.SessionJWT:
		sessions = NewJWTSessions(cfg.SessionKey, nil)
	default:
		sessions = PasswordSessions{Password: cfg.AuthPassword, Verifier: verifier}
	}

	journal, err := OpenJournal(cfg.DBPath, cfg.EventRetention, log.Named("journal"))
	if err != nil {
		return nil, fmt.Errorf("initializing journal: %w", err)
	}

	return New(Options{
		Secret:          cfg.Secret,
		Verifier:        verifier,
		Sessions:        sessions,
		OpenDashboard:   cfg.AuthPassword == "",
		OnlineThreshold: cfg.OnlineThreshold(),
		ProxyTimeout:    cfg.ProxyTimeout(),
		LoginFailDelay:  cfg.LoginFailDelay(),
		LogMaxBytes:     cfg.LogMaxBytes,
		TrustedProxies:  cfg.TrustedProxies,
		Journal:         journal,
		Logger:          log,
	}), nil
}

// Handler returns the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(s.trustedProxies); err != nil {
		// entries are checked by config validation; fall back to trusting none
		s.logger.Error("invalid trusted proxies, ignoring X-Forwarded-For", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery(), logging.GinMiddleware(s.logger.Named("http")))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", auth.SecretHeader},
		MaxAge:          12 * time.Hour,
	}))

	s.RegisterRoutes(r)
	s.RegisterDashboard(r)
	return r
}

// Close releases the journal, if any.
func (s *Server) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}

// sleep pauses for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
