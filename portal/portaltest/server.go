// Package portaltest provides an in-process fake of my.telegram.org for tests.
package portaltest

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

// Server mimics the four portal routes. One phone is registered; it receives
// RandomHash, signs in with Code and gets Token. The apps page renders the
// creation form until an app is created, then the credentials.
type Server struct {
	*httptest.Server

	Phone      string
	RandomHash string
	Code       string
	Token      string
	FormHash   string
	APIID      string
	APIHash    string

	mu             sync.Mutex
	created        bool
	createResponse *string
	sendCalls      []url.Values
	loginCalls     []url.Values
	createCalls    []url.Values
}

// NewServer starts a fake portal with the defaults used across tests.
// The caller must Close it.
func NewServer() *Server {
	s := &Server{
		Phone:      "99900000000",
		RandomHash: "h1",
		Code:       "11111",
		Token:      "tok",
		FormHash:   "formhash42",
		APIID:      "12345",
		APIHash:    "deadbeef",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/send_password", s.handleSendPassword)
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/apps", s.handleApps)
	mux.HandleFunc("/apps/create", s.handleCreate)
	s.Server = httptest.NewServer(mux)

	return s
}

// SetCreated marks an app as already registered for the account.
func (s *Server) SetCreated(created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = created
}

// SetCreateResponse overrides the /apps/create body. The app is not marked
// created when an override is set.
func (s *Server) SetCreateResponse(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createResponse = &body
}

func (s *Server) SendCalls() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.sendCalls...)
}

func (s *Server) LoginCalls() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.loginCalls...)
}

func (s *Server) CreateCalls() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.createCalls...)
}

func (s *Server) handleSendPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.ParseForm() != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.sendCalls = append(s.sendCalls, r.PostForm)
	s.mu.Unlock()

	if r.PostForm.Get("phone") != s.Phone {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "Sorry, too many tries. Please try again later.")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"random_hash": s.RandomHash})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.ParseForm() != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.loginCalls = append(s.loginCalls, r.PostForm)
	s.mu.Unlock()

	form := r.PostForm
	if form.Get("phone") != s.Phone || form.Get("random_hash") != s.RandomHash || form.Get("password") != s.Code {
		fmt.Fprint(w, "Invalid confirmation code!")
		return
	}

	w.Header().Add("Set-Cookie", "stel_ssid=abc; expires=Thu, 01 Jan 2099 00:00:00 GMT; path=/; samesite=None; secure; HttpOnly")
	w.Header().Add("Set-Cookie", "stel_token="+s.Token+"; expires=Thu, 01 Jan 2099 00:00:00 GMT; path=/; samesite=None; secure; HttpOnly")
	fmt.Fprint(w, "true")
}

func (s *Server) authorized(r *http.Request) bool {
	c, err := r.Cookie("stel_token")
	return err == nil && c.Value == s.Token
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !s.authorized(r) {
		fmt.Fprint(w, loginPage)
		return
	}

	s.mu.Lock()
	created := s.created
	s.mu.Unlock()

	if created {
		fmt.Fprintf(w, credentialsPage, html.EscapeString(s.APIID), html.EscapeString(s.APIHash))
		return
	}
	fmt.Fprintf(w, createFormPage, html.EscapeString(s.FormHash))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.ParseForm() != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls = append(s.createCalls, r.PostForm)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !s.authorized(r) || r.PostForm.Get("hash") != s.FormHash {
		fmt.Fprint(w, "ERROR")
		return
	}
	if s.createResponse != nil {
		fmt.Fprint(w, *s.createResponse)
		return
	}
	if strings.TrimSpace(r.PostForm.Get("app_title")) == "" {
		fmt.Fprint(w, "Incorrect app title")
		return
	}

	s.created = true
}

const loginPage = `<!DOCTYPE html>
<html><body><div class="login_form">
<input type="tel" id="my_login_phone">
</div></body></html>`

const createFormPage = `<!DOCTYPE html>
<html><body>
<form id="app_create_form" class="form-horizontal" role="form">
<input type="hidden" name="hash" value="%s"/>
<div class="form-group">
  <label for="app_title" class="col-md-4 text-right control-label">App title:</label>
  <div class="col-md-7"><input type="text" class="form-control" id="app_title" name="app_title"></div>
</div>
<div class="form-group">
  <label for="app_shortname" class="col-md-4 text-right control-label">Short name:</label>
  <div class="col-md-7"><input type="text" class="form-control" id="app_shortname" name="app_shortname"></div>
</div>
</form>
</body></html>`

const credentialsPage = `<!DOCTYPE html>
<html><body>
<form class="form-horizontal" role="form">
<h2>App configuration</h2>
<div class="form-group">
  <label for="app_id" class="col-md-4 text-right control-label">App api_id:</label>
  <div class="col-md-7"><span class="form-control input-xlarge uneditable-input" onclick="this.select();"><strong>%s</strong></span></div>
</div>
<div class="form-group">
  <label for="app_hash" class="col-md-4 text-right control-label">App api_hash:</label>
  <div class="col-md-7"><span class="form-control input-xlarge uneditable-input" onclick="this.select();">%s</span></div>
</div>
</form>
</body></html>`
