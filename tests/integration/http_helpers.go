package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/remix/authcore/internal/config"
	"github.com/remix/authcore/internal/database"
	"github.com/remix/authcore/internal/handlers"
	middlewareCustom "github.com/remix/authcore/internal/middleware"
	"github.com/remix/authcore/internal/repositories"
	"github.com/remix/authcore/internal/routes"
	"github.com/remix/authcore/internal/services"
	pkgauth "github.com/remix/authcore/pkg/auth"
	pkglogger "github.com/remix/authcore/pkg/logger"
)

// SentEmail is a captured outbound message
type SentEmail struct {
	To    string
	Kind  string // "verification", "two_factor", "unlock"
	Token string // verification/unlock token or two-factor code
}

// CapturingNotifier implements services.Notifier and records every send for
// test assertions
type CapturingNotifier struct {
	mu   sync.Mutex
	Sent []SentEmail
}

func (n *CapturingNotifier) record(to, kind, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, SentEmail{To: to, Kind: kind, Token: token})
}

func (n *CapturingNotifier) SendVerificationLink(ctx context.Context, email, token string) error {
	n.record(email, "verification", token)
	return nil
}

func (n *CapturingNotifier) SendTwoFactorCode(ctx context.Context, email, code string) error {
	n.record(email, "two_factor", code)
	return nil
}

func (n *CapturingNotifier) SendUnlockLink(ctx context.Context, email, token string) error {
	n.record(email, "unlock", token)
	return nil
}

// Last returns the most recent email of the given kind, or nil
func (n *CapturingNotifier) Last(kind string) *SentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.Sent) - 1; i >= 0; i-- {
		if n.Sent[i].Kind == kind {
			return &n.Sent[i]
		}
	}
	return nil
}

// TestServer wraps httptest.Server with the full service stack over a real
// database and a captured outbox
type TestServer struct {
	Server   *httptest.Server
	Notifier *CapturingNotifier
	Security config.SecurityConfig
}

// TestSecurityConfig returns lockout/expiry knobs tightened for tests
func TestSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		MaxLoginAttempts:        5,
		LockoutDuration:         1 * time.Hour,
		MaxTwoFactorAttempts:    3,
		TwoFactorCodeLength:     6,
		TwoFactorCodeExpiry:     5 * time.Minute,
		VerificationTokenExpiry: 24 * time.Hour,
		SessionTimeout:          30 * time.Minute,
		SessionSweepInterval:    10 * time.Minute,
	}
}

// NewTestServer wires the production router over db with a capturing notifier
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	auditLogger := pkglogger.NewAuditLogger(logger)

	sec := TestSecurityConfig()

	accountRepo := repositories.NewAccountRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)

	notifier := &CapturingNotifier{}

	accountService := services.NewAccountService(accountRepo, notifier, sec, logger, auditLogger)
	twoFactorService := services.NewTwoFactorService(accountRepo, notifier, sec, logger, auditLogger)
	sessionService := services.NewSessionService(sessionRepo, sec, logger, auditLogger)

	// Zero-config delay keeps failure-path tests fast
	timing := pkgauth.NewTimingDelay(pkgauth.TimingConfig{})

	authHandler := handlers.NewAuthHandler(accountService, twoFactorService, sessionService, timing)
	sessionHandler := handlers.NewSessionHandler(sessionService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, sessionHandler, nil)

	return &TestServer{
		Server:   httptest.NewServer(r),
		Notifier: notifier,
		Security: sec,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// ParseJSONResponse parses a JSON response body into target
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
