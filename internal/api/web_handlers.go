package api

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/mymapsapp/mymaps-server/internal/auth"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/http/response"
)

//go:embed templates/*.html
var templates embed.FS

var callbackPage = template.Must(template.ParseFS(templates, "templates/mobile_callback.html"))

const (
	mobileCallbackPath = "/auth/mobile-callback"
	mobileRelayPath    = "/auth/mobile-callback/relay"
)

// callbackPageData contains data for the mobile callback page template.
type callbackPageData struct {
	RelayPath string
}

func (s *Server) registerWebRoutes() {
	s.router.Get(mobileCallbackPath, s.handleMobileCallback)
	s.router.Get(mobileRelayPath, s.handleMobileRelay)

	if s.events != nil {
		s.router.Get("/api/v1/events", s.events.ServeHTTP)
	}
}

// handleMobileCallback is the OAuth redirect target of the mobile app. Providers put the
// ID token in the fragment, which never reaches the server, so the page moves it into
// the relay's query string. A token already in the query is relayed directly.
// GET /auth/mobile-callback
func (s *Server) handleMobileCallback(w http.ResponseWriter, r *http.Request) {
	if tok := r.URL.Query().Get("id_token"); tok != "" {
		http.Redirect(w, r, mobileRelayPath+"?id_token="+url.QueryEscape(tok), http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	if err := callbackPage.Execute(w, callbackPageData{RelayPath: mobileRelayPath}); err != nil {
		s.logger.Error("failed to render mobile callback page", "error", err)
	}
}

// handleMobileRelay hands a well-formed ID token to the app through its deep link.
// GET /auth/mobile-callback/relay?id_token=
func (s *Server) handleMobileRelay(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("id_token")
	if !auth.ValidIDTokenShape(tok) {
		response.BadRequest(w, "Missing or malformed id_token", s.logger)
		return
	}
	if s.oauth.MobileDeepLink == "" {
		s.logger.Error("mobile relay hit without a deep link configured")
		response.Fail(w, http.StatusServiceUnavailable, errors.CodeInternal, "Mobile sign-in is not configured", s.logger)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	http.Redirect(w, r, auth.DeepLink(s.oauth.MobileDeepLink, tok), http.StatusFound)
}
