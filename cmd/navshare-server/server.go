package main

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/fleetnav/navshare/internal/log"
	"github.com/fleetnav/navshare/pkg/auth"
	"github.com/fleetnav/navshare/pkg/nav"
)

const (
	sessionName    = "navshare"
	sessionUserKey = "user"
)

// Server glues the Authorization Manager and the navigation Service to HTTP.
// The interactive page identifies the browser user with a session cookie; the
// /api/navigate endpoint takes the user id from a query parameter so it can
// be called from a phone shortcut.
type Server struct {
	auth     *auth.Manager
	nav      *nav.Service
	sessions *sessions.CookieStore
	mux      *http.ServeMux
}

func NewServer(authManager *auth.Manager, navService *nav.Service, sessionKey []byte) *Server {
	s := &Server{
		auth:     authManager,
		nav:      navService,
		sessions: sessions.NewCookieStore(sessionKey),
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/callback", s.handleCallback)
	s.mux.HandleFunc("/api/navigate", s.handleNavigate)
	s.mux.HandleFunc("/disconnect", s.handleDisconnect)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) sessionUser(r *http.Request) string {
	session, err := s.sessions.Get(r, sessionName)
	if err != nil {
		return ""
	}
	user, _ := session.Values[sessionUserKey].(string)
	return user
}

func (s *Server) saveSessionUser(w http.ResponseWriter, r *http.Request, user string) error {
	session, _ := s.sessions.Get(r, sessionName)
	session.Values[sessionUserKey] = user
	return session.Save(r, w)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>navshare</title></head>
<body>
<h1>Send a destination to your Tesla</h1>
{{if not .User}}
<form action="/auth/login" method="get">
  <label>Your name: <input name="user"></label>
  <button type="submit">Connect Tesla account</button>
</form>
{{else if not .Authenticated}}
<p>Hi {{.User}}. Your Tesla account is not connected.</p>
<p><a href="/auth/login?user={{.User}}">Connect Tesla account</a></p>
{{else}}
<p>Connected as {{.User}}.</p>
<form action="/api/navigate" method="post">
  <input type="hidden" name="user" value="{{.User}}">
  <label>Destination: <input name="destination"></label>
  <button type="submit">Send to Tesla</button>
</form>
<form action="/disconnect" method="post"><button type="submit">Disconnect account</button></form>
<h2>Siri Shortcut</h2>
<p>Create a shortcut that asks for a destination, URL-encodes it, and fetches:</p>
<pre>{{.BaseURL}}/api/navigate?user={{.User}}&amp;destination=&lt;encoded text&gt;</pre>
{{end}}
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	user := s.sessionUser(r)
	data := struct {
		User          string
		Authenticated bool
		BaseURL       string
	}{
		User:    user,
		BaseURL: "https://" + r.Host,
	}
	if user != "" {
		data.Authenticated = s.nav.Authenticated(user)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		log.Error("Failed to render index: %s", err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	user := r.FormValue("user")
	if user == "" {
		user = s.sessionUser(r)
	}
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}
	if err := s.saveSessionUser(w, r, user); err != nil {
		http.Error(w, "could not save session", http.StatusInternalServerError)
		return
	}
	redirectURL, err := s.auth.BeginAuthorization(user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	user := s.sessionUser(r)
	if user == "" {
		http.Error(w, "no login session; start over from the home page", http.StatusBadRequest)
		return
	}
	if providerError := r.FormValue("error"); providerError != "" {
		s.auth.CancelAuthorization(user)
		log.Warning("Authorization denied for %s: %s", user, providerError)
		http.Error(w, "authorization denied: "+providerError, http.StatusUnauthorized)
		return
	}
	record, err := s.auth.CompleteAuthorization(r.Context(), user, r.FormValue("code"), r.FormValue("state"))
	if err != nil {
		log.Error("Authorization failed for %s: %s", user, err)
		http.Error(w, "authorization failed: "+err.Error(), authStatusCode(err))
		return
	}
	log.Info("Connected %s to vehicle %s", user, record.VehicleID)
	http.Redirect(w, r, "/", http.StatusFound)
}

func authStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrNoPendingRequest), errors.Is(err, auth.ErrMissingCode):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrStateMismatch):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

// navigateResponse matches what the shortcut expects: either status+message
// or a single error string.
type navigateResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body navigateResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Failed to encode response: %s", err)
	}
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	user := r.FormValue("user")
	destination := r.FormValue("destination")
	if user == "" || destination == "" {
		writeJSON(w, http.StatusBadRequest, navigateResponse{Error: "user and destination are required"})
		return
	}

	result, err := s.nav.HandleNavigationRequest(r.Context(), user, destination)
	if err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, nav.ErrNotAuthenticated) {
			code = http.StatusUnauthorized
		} else if errors.Is(err, nav.ErrWakeTimeout) {
			code = http.StatusGatewayTimeout
		}
		writeJSON(w, code, navigateResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, navigateResponse{Status: result.Status, Message: result.Message})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := s.sessionUser(r)
	if user == "" {
		user = r.FormValue("user")
	}
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}
	if err := s.auth.RevokeAuthorization(user); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Info("Disconnected %s", user)
	http.Redirect(w, r, "/", http.StatusFound)
}
