package router

import (
	"net/http"

	"github.com/scriptstudio/backend/internal/auth"
	"github.com/scriptstudio/backend/internal/handlers"
	"github.com/scriptstudio/backend/internal/jobs"
	"github.com/scriptstudio/backend/internal/middleware"
)

// Handlers groups everything mounted under /api/v1.
type Handlers struct {
	Auth       *auth.Handler
	Operations *handlers.OperationHandler
	Credits    *handlers.CreditHandler
	Runs       *jobs.Handler
}

// New returns an http.Handler that serves the API under /api/v1. Everything
// except register and login requires a bearer token.
func New(h Handlers, tokens middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)

	requireUser := middleware.RequireUser(tokens)
	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, requireUser(fn))
	}

	protected("POST "+base+"/references/analyze", h.Operations.AnalyzeReference)
	protected("POST "+base+"/scripts/generate", h.Operations.GenerateScript)
	protected("POST "+base+"/trends/daily", h.Operations.DailyTrends)
	protected("GET "+base+"/agent-tasks/{id}", h.Operations.TaskStatus)

	protected("GET "+base+"/credits", h.Credits.GetBalance)
	protected("POST "+base+"/credits", h.Credits.AddCredits)
	protected("GET "+base+"/credits/history", h.Credits.History)

	protected("POST "+base+"/runs", h.Runs.CreateRun)
	protected("GET "+base+"/runs", h.Runs.ListRuns)
	protected("GET "+base+"/runs/{id}", h.Runs.GetRun)

	return mux
}
