package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/irrigation-core/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	Role        auth.Role `json:"role"`
}

// handleLogin exchanges a configured account's credentials for a token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.secCfg.Enabled || s.accounts == nil {
		writeUnavailable(w, "login is not enabled")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p, err := s.accounts.Authenticate(req.Username, req.Password)
	if err != nil {
		s.logger.Warn("login failed", "username", req.Username, "request_id", r.Context().Value(ctxKeyRequestID))
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}
	token, err := auth.GenerateToken(p, []byte(s.secCfg.JWT.Secret), ttl)
	if err != nil {
		s.logger.Error("issuing token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
		Role:        p.Role,
	})
}

// handleWSTicket issues a single-use ticket so the browser need not put
// its JWT in the WebSocket URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket := s.tickets.issue(principalFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

type ticketEntry struct {
	principal auth.Principal
	expiresAt time.Time
}

type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

func (ts *ticketStore) issue(p auth.Principal) string {
	ticket := uuid.NewString()
	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{principal: p, expiresAt: time.Now().Add(ticketTTL)}
	ts.mu.Unlock()
	return ticket
}

var errTicketInvalid = errors.New("invalid or expired ticket")

// redeem consumes a ticket.
func (ts *ticketStore) redeem(ticket string) (auth.Principal, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return auth.Principal{}, errTicketInvalid
	}
	delete(ts.tickets, ticket)
	if time.Now().After(entry.expiresAt) {
		return auth.Principal{}, errTicketInvalid
	}
	return entry.principal, nil
}

func (ts *ticketStore) clean(now time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for ticket, entry := range ts.tickets {
		if now.After(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

func (ts *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ts.clean(now)
		}
	}
}
