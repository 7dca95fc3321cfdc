package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trendingmotion/motion-crm/internal/blog"
	"github.com/trendingmotion/motion-crm/internal/identity"
	"github.com/trendingmotion/motion-crm/internal/leads"
	"github.com/trendingmotion/motion-crm/internal/seo"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type leadsPayload struct {
	Records    []leads.Lead    `json:"records"`
	Total      int             `json:"total"`
	Source     string          `json:"source"`
	Attempts   []leads.Attempt `json:"attempts"`
	Stats      leads.Stats     `json:"stats"`
	FormTypes  []string        `json:"formTypes"`
	Diagnostic string          `json:"diagnostic,omitempty"`
}

func payloadOf(v leads.View) leadsPayload {
	return leadsPayload{
		Records:    v.Visible,
		Total:      v.Total,
		Source:     v.Source,
		Attempts:   v.Attempts,
		Stats:      v.Stats,
		FormTypes:  v.FormTypes,
		Diagnostic: diagnostic(v.Err),
	}
}

func (s *Server) apiSignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	session, err := s.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.log.Info().Err(err).Msg("sign-in rejected")
		// Provider reasons stay in the log.
		fail(c, loginStatus(err), identity.UserMessage(err), "authentication failed")
		return
	}
	if err := s.setSessionCookie(c, session); err != nil {
		s.log.Error().Err(err).Msg("could not seal session cookie")
	}
	ok(c, session, "Signed in")
}

func (s *Server) apiSession(c *gin.Context) {
	ok(c, sessionOf(c), "")
}

func (s *Server) apiSignOut(c *gin.Context) {
	if err := s.auth.SignOut(c.Request.Context(), sessionOf(c).Token); err != nil {
		fail(c, http.StatusInternalServerError, "Failed to sign out", err.Error())
		return
	}
	s.clearSessionCookie(c)
	ok(c, nil, "Signed out")
}

// apiLeads mounts the board and applies the filters of the query string.
func (s *Server) apiLeads(c *gin.Context) {
	cr, err := criteriaFrom(c)
	if err != nil {
		fail(c, http.StatusBadRequest, messageBadDates, err.Error())
		return
	}
	board := workspaceOf(c).Board
	_ = board.Load(c.Request.Context())
	board.SetCriteria(cr)

	view := board.View()
	p := payloadOf(view)
	ok(c, p, p.Diagnostic)
}

func (s *Server) ensureBoard(c *gin.Context) *leads.Board {
	board := workspaceOf(c).Board
	if !board.Loaded() {
		_ = board.Load(c.Request.Context())
	}
	return board
}

func (s *Server) apiLeadStats(c *gin.Context) {
	ok(c, s.ensureBoard(c).View().Stats, "")
}

func (s *Server) apiPipeline(c *gin.Context) {
	ok(c, leads.Pipeline(s.ensureBoard(c).Visible()), "")
}

// apiDeleteLead deletes a lead of the board. The collection in the path must
// be the one the lead was read from.
func (s *Server) apiDeleteLead(c *gin.Context) {
	collection, id := c.Param("collection"), c.Param("id")
	board := s.ensureBoard(c)
	if source, found := board.CollectionOf(id); !found || source != collection {
		fail(c, http.StatusNotFound, messageLeadNotFound, collection+"/"+id+" is not a lead on the board")
		return
	}
	if err := board.Delete(c.Request.Context(), s.store, id); err != nil {
		failStore(c, messageLeadDelFailed, err)
		return
	}
	ok(c, gin.H{"collection": collection, "id": id}, "Lead deleted")
}

func (s *Server) apiBlogs(c *gin.Context) {
	listing := workspaceOf(c).Blog
	if err := listing.Load(c.Request.Context()); err != nil {
		failStore(c, messagePostsLoadFailed, err)
		return
	}
	ok(c, listing.Posts(), "")
}

func (s *Server) apiCreatePost(c *gin.Context) {
	var draft blog.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	post, err := workspaceOf(c).Blog.Create(c.Request.Context(), draft)
	switch {
	case errors.Is(err, blog.ErrInvalidDraft):
		fail(c, http.StatusBadRequest, messageDraftInvalid, err.Error())
		return
	case err != nil && post.ID == "":
		failStore(c, messagePostSaveFailed, err)
		return
	case err != nil:
		s.log.Warn().Err(err).Msg("post created but listing reload failed")
	}
	created(c, post, "Post created")
}

func (s *Server) apiPost(c *gin.Context) {
	post, err := s.blog.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		status, message := postFailure(err)
		fail(c, status, message, err.Error())
		return
	}
	ok(c, post, "")
}

func (s *Server) apiDeletePost(c *gin.Context) {
	if err := workspaceOf(c).Blog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failStore(c, messagePostDelFailed, err)
		return
	}
	ok(c, gin.H{"id": c.Param("id")}, "Post deleted")
}

func (s *Server) apiSaveSEO(c *gin.Context) {
	var settings seo.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := s.seo.Save(c.Request.Context(), settings); err != nil {
		failStore(c, seo.MessageSaveFailed, err)
		return
	}
	ok(c, settings, seo.MessageSaved)
}

// getSEO also serves the landing pages, without a session.
func (s *Server) getSEO(c *gin.Context) {
	settings, err := s.seo.Load(c.Request.Context())
	if err != nil {
		failStore(c, seo.MessageLoadFailed, err)
		return
	}
	ok(c, settings, "")
}
