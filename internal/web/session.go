package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/trendingmotion/motion-crm/internal/identity"
	"github.com/trendingmotion/motion-crm/internal/vault"
)

// SessionCookie carries the sealed session token.
const SessionCookie = "motioncrm_session"

const (
	ctxSession   = "session"
	ctxWorkspace = "workspace"
)

// Authenticator is the identity provider as seen by the web layer.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	SignOut(ctx context.Context, token string) error
	Current(ctx context.Context, token string) (*identity.Session, error)
	Subscribe(fn func(identity.Event)) func()
}

// tokenFrom reads the bearer token, falling back to the session cookie.
// Cookies that fail to unseal are ignored.
func (s *Server) tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if token, found := strings.CutPrefix(h, "Bearer "); found {
			return strings.TrimSpace(token)
		}
	}
	sealed, err := c.Cookie(SessionCookie)
	if err != nil || sealed == "" {
		return ""
	}
	token, err := vault.Decrypt(sealed, s.opts.SessionKey)
	if err != nil {
		s.log.Debug().Err(err).Msg("discarding unreadable session cookie")
		return ""
	}
	return token
}

func (s *Server) setSessionCookie(c *gin.Context, session *identity.Session) error {
	sealed, err := vault.Encrypt(session.Token, s.opts.SessionKey)
	if err != nil {
		return err
	}
	maxAge := int(session.ExpiresAt.Sub(session.CreatedAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sealed, maxAge, "/", "", s.opts.SecureCookies, true)
	return nil
}

func (s *Server) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", s.opts.SecureCookies, true)
}

// lookupSession resolves the caller's session. A missing session drops the
// token's workspace, since the session store may expire entries on its own.
// Any other provider failure is treated as signed out and logged.
func (s *Server) lookupSession(c *gin.Context) *identity.Session {
	token := s.tokenFrom(c)
	if token == "" {
		return nil
	}
	session, err := s.auth.Current(c.Request.Context(), token)
	if errors.Is(err, identity.ErrNoSession) {
		s.workspaces.drop(token)
		return nil
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("session lookup failed")
		return nil
	}
	return session
}

// requireScreenSession renders the login screen in place of any screen
// when there is no session.
func (s *Server) requireScreenSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := s.lookupSession(c)
		if session == nil {
			s.renderLogin(c, http.StatusOK, "")
			c.Abort()
			return
		}
		s.attach(c, session)
	}
}

// requireAPISession answers 401 without a session.
func (s *Server) requireAPISession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := s.lookupSession(c)
		if session == nil {
			fail(c, http.StatusUnauthorized, "Authentication required", identity.ErrNoSession.Error())
			return
		}
		s.attach(c, session)
	}
}

// attach binds the session's workspace and serializes the session's
// requests on it for the rest of the chain.
func (s *Server) attach(c *gin.Context, session *identity.Session) {
	ws := s.workspaces.get(session)
	c.Set(ctxSession, session)
	c.Set(ctxWorkspace, ws)

	ws.mu.Lock()
	defer ws.mu.Unlock()
	c.Next()
}

func sessionOf(c *gin.Context) *identity.Session {
	v, _ := c.Get(ctxSession)
	session, _ := v.(*identity.Session)
	return session
}

func workspaceOf(c *gin.Context) *Workspace {
	v, _ := c.Get(ctxWorkspace)
	ws, _ := v.(*Workspace)
	return ws
}
