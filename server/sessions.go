package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jcrioszam/red-ciudadana-sub001/catalog"
	"github.com/jcrioszam/red-ciudadana-sub001/flow"
	"github.com/jcrioszam/red-ciudadana-sub001/gateway"
)

// flowSession pairs one browser shell with one flow controller. Exactly one
// draft exists per session, matching the single-draft lifecycle of the flow.
type flowSession struct {
	ID            string
	Controller    *flow.Controller
	Authenticated bool
	CreatedAt     time.Time
	LastSeen      time.Time
}

func (s *Server) buildSubmitter(backendToken string, categories []catalog.Category) flow.Submitter {
	var submitter flow.Submitter
	if backendToken != "" {
		submitter = gateway.NewAuthenticatedGateway(s.cfg.BackendBaseURL, backendToken, categories)
	} else {
		submitter = gateway.NewPublicGateway(s.cfg.BackendBaseURL, categories)
	}
	return &countingSubmitter{inner: submitter, metrics: s.metrics}
}

func (s *Server) createSession(ctx context.Context, backendToken string) (*flowSession, error) {
	categories, err := s.catalogSource.Categories(ctx)
	if err != nil {
		// FallbackSource never fails, but a custom source might.
		categories = catalog.Fallback()
	}

	id := uuid.NewString()
	session := &flowSession{
		ID: id,
		Controller: flow.New(flow.Options{
			Categories: categories,
			Submitter: &sessionScopedSubmitter{
				inner:     s.newSubmitter(backendToken, categories),
				server:    s,
				sessionID: id,
			},
		}),
		Authenticated: backendToken != "",
		CreatedAt:     time.Now().UTC(),
		LastSeen:      time.Now().UTC(),
	}

	s.sessionMu.Lock()
	s.sessions[session.ID] = session
	active := len(s.sessions)
	s.sessionMu.Unlock()
	s.metrics.SetActiveSessions(active)

	return session, nil
}

// sessionScopedSubmitter removes its session from the store once the
// backend accepts the report. A session carries exactly one report; after a
// successful submission the shell starts over with a fresh session.
type sessionScopedSubmitter struct {
	inner     flow.Submitter
	server    *Server
	sessionID string
}

func (s *sessionScopedSubmitter) Submit(ctx context.Context, draft *flow.ReportDraft) error {
	err := s.inner.Submit(ctx, draft)
	if err == nil {
		s.server.dropSession(s.sessionID)
	}
	return err
}

func (s *Server) dropSession(id string) {
	s.sessionMu.Lock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	active := len(s.sessions)
	s.sessionMu.Unlock()
	if !ok {
		return
	}
	session.Controller.Close()
	s.metrics.SetActiveSessions(active)
	s.log.Info("flow session completed", "id", id)
}

func (s *Server) lookupSession(id string) *flowSession {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	session.LastSeen = time.Now().UTC()
	return session
}

func (s *Server) createSessionToken(sessionID string) (string, error) {
	claims := jwt.MapClaims{
		"sid": sessionID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(s.cfg.SessionTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.AppSigningSecret))
}

func (s *Server) verifySessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(s.cfg.AppSigningSecret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid session token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	sessionID, _ := claims["sid"].(string)
	if sessionID == "" {
		return "", fmt.Errorf("missing sid")
	}
	return sessionID, nil
}

func (s *Server) requireFlowSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Flow session token required"})
			c.Abort()
			return
		}
		sessionID, err := s.verifySessionToken(token)
		if err != nil || sessionID != c.Param("id") {
			writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Flow session token required"})
			c.Abort()
			return
		}
		session := s.lookupSession(sessionID)
		if session == nil {
			writeAPIError(c, &apiError{Status: http.StatusNotFound, Code: "session_not_found", Message: "Flow session expired or unknown"})
			c.Abort()
			return
		}
		c.Set("flowSession", session)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func sessionFromContext(c *gin.Context) (*flowSession, error) {
	value, ok := c.Get("flowSession")
	if !ok {
		return nil, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Flow session required"}
	}
	session, ok := value.(*flowSession)
	if !ok {
		return nil, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Flow session required"}
	}
	return session, nil
}

func (s *Server) startSessionCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.pruneSessions(now)
				s.pruneRateLimiterState(now)
			}
		}
	}()
}

func (s *Server) pruneSessions(now time.Time) {
	s.sessionMu.Lock()
	for id, session := range s.sessions {
		if now.Sub(session.LastSeen) >= s.cfg.SessionTTL {
			session.Controller.Close()
			delete(s.sessions, id)
			s.log.Info("flow session expired", "id", id)
		}
	}
	active := len(s.sessions)
	s.sessionMu.Unlock()
	s.metrics.SetActiveSessions(active)
}
