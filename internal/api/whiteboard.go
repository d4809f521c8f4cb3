package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"

	"github.com/npezzotti/go-whiteboard/internal/auth"
	"github.com/npezzotti/go-whiteboard/internal/config"
	"github.com/npezzotti/go-whiteboard/internal/database"
	"github.com/npezzotti/go-whiteboard/internal/otp"
	"github.com/npezzotti/go-whiteboard/internal/server"
	"github.com/npezzotti/go-whiteboard/internal/store"
)

// TokenService issues session tokens at login and validates them on every
// authenticated request.
type TokenService interface {
	auth.TokenIssuer
	auth.TokenValidator
	Expiration() time.Duration
}

type WhiteboardApp struct {
	log            *log.Logger
	db             database.WhiteboardRepository
	srv            *http.Server
	wb             *server.WhiteboardServer
	perms          store.PermissionStore
	boards         store.BoardStore
	tokens         TokenService
	codes          *otp.Service
	allowedOrigins []string

	generateShortId func() (string, error)
}

func NewWhiteboardApp(mux *http.ServeMux, logger *log.Logger, wb *server.WhiteboardServer, db database.WhiteboardRepository,
	perms store.PermissionStore, boards store.BoardStore, tokens TokenService, codes *otp.Service, cfg *config.Config) *WhiteboardApp {
	s := &WhiteboardApp{
		log:            logger,
		db:             db,
		wb:             wb,
		perms:          perms,
		boards:         boards,
		tokens:         tokens,
		codes:          codes,
		allowedOrigins: cfg.AllowedOrigins,

		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("POST /api/auth/request-otp", s.requestOtp)
	mux.HandleFunc("POST /api/auth/verify-otp", s.verifyOtp)
	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("POST /api/rooms/join", s.authMiddleware(s.joinRoom))
	mux.HandleFunc("POST /api/rooms/permissions", s.authMiddleware(s.setPermissions))
	mux.HandleFunc("GET /api/rooms/mine", s.authMiddleware(s.listRooms))
	mux.HandleFunc("GET /api/rooms/{roomId}", s.authMiddleware(s.getRoom))
	mux.HandleFunc("GET /api/boards/{roomId}", s.authMiddleware(s.getBoard))
	mux.HandleFunc("POST /api/boards/{roomId}/save", s.authMiddleware(s.saveBoard))
	mux.HandleFunc("GET /api/boards/{roomId}/export.pdf", s.authMiddleware(s.exportBoard))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *WhiteboardApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *WhiteboardApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *WhiteboardApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
