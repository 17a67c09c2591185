package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fundvault/native/fund"
	"fundvault/services/fundd/settlement"
	"fundvault/services/fundd/storage"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine          *fund.Engine
	Store           *storage.Store
	Settlement      settlement.Client
	Log             *slog.Logger
	JWTSecret       string
	DisplayDecimals int32
}

// Server exposes the fund engine over HTTP.
type Server struct {
	engine    *fund.Engine
	store     *storage.Store
	settle    settlement.Client
	log       *slog.Logger
	jwtSecret []byte
	decimals  int32

	router http.Handler
}

// New constructs a configured HTTP router with bearer authentication.
func New(cfg Config) *Server {
	logger := cfg.Log
	if logger == nil {
		logger = slog.Default()
	}
	decimals := cfg.DisplayDecimals
	if decimals < 0 {
		decimals = 0
	}
	srv := &Server{
		engine:    cfg.Engine,
		store:     cfg.Store,
		settle:    cfg.Settlement,
		log:       logger,
		jwtSecret: []byte(cfg.JWTSecret),
		decimals:  decimals,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "fundd")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.authenticate)

		api.Post("/funds", s.CreateFund)
		api.Route("/funds/{fundID}", func(fr chi.Router) {
			fr.Get("/", s.GetFund)
			fr.Get("/members", s.ListMembers)
			fr.Get("/members/{wallet}", s.GetMember)
			fr.Get("/quote", s.QuotePosition)
			fr.Get("/audit", s.ListAudit)

			fr.Post("/contributions", s.Contribute)
			fr.Post("/redemptions", s.RedeemFull)
			fr.Post("/profit-claims", s.RedeemProfitOnly)

			fr.Get("/proposals", s.ListProposals)
			fr.Post("/proposals", s.ProposeTrade)
			fr.Get("/proposals/{proposalID}", s.GetProposal)
			fr.Post("/proposals/{proposalID}/approvals", s.ApproveTrade)
			fr.Post("/proposals/{proposalID}/execute", s.ExecuteTrade)

			fr.Post("/pause", s.PauseFund)
			fr.Post("/resume", s.ResumeFund)
			fr.Post("/close", s.CloseFund)
			fr.Post("/traders/{wallet}", s.AllowTrader)
			fr.Delete("/traders/{wallet}", s.RevokeTrader)
			fr.Post("/members", s.AddMember)
			fr.Put("/members/{wallet}/role", s.SetMemberRole)
			fr.Post("/members/{wallet}/deactivate", s.DeactivateMember)
			fr.Post("/members/{wallet}/reactivate", s.ReactivateMember)
		})
	})

	return r
}

// Healthz reports liveness.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
