package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trendingmotion/motion-crm/internal/blog"
	"github.com/trendingmotion/motion-crm/internal/identity"
	"github.com/trendingmotion/motion-crm/internal/leads"
	"github.com/trendingmotion/motion-crm/internal/seo"
)

const (
	messagePostNotFound    = "Blog post not found."
	messagePostLoadFailed  = "Failed to load blog post."
	messagePostsLoadFailed = "Failed to load blog posts."
	messageDraftInvalid    = "Title and content are required."
	messagePostSaveFailed  = "Failed to save blog post."
	messagePostDelFailed   = "Failed to delete blog post."
	messageLeadDelFailed   = "Failed to delete lead."
	messageLeadNotFound    = "Lead not found."
	messageBadDates        = "Dates must be in YYYY-MM-DD format."
)

type navItem struct {
	Title  string
	Path   string
	Active bool
}

var navigation = []navItem{
	{Title: "Dashboard", Path: "/"},
	{Title: "Pipeline", Path: "/pipeline"},
	{Title: "Blog", Path: "/blog"},
	{Title: "SEO Settings", Path: "/seo"},
}

func navFor(path string) []navItem {
	out := make([]navItem, len(navigation))
	for i, item := range navigation {
		item.Active = path == item.Path || (item.Path != "/" && strings.HasPrefix(path, item.Path+"/"))
		out[i] = item
	}
	return out
}

var templateFuncs = template.FuncMap{
	"instant": func(l leads.Lead) string {
		if !l.HasAt {
			return "-"
		}
		return l.At.Format("2006-01-02 15:04")
	},
	"join": strings.Join,
}

// render adds the shell fields every screen needs.
func (s *Server) render(c *gin.Context, status int, name, title string, data gin.H) {
	data["Title"] = title
	data["Nav"] = navFor(c.Request.URL.Path)
	data["Session"] = sessionOf(c)
	c.HTML(status, name, data)
}

func (s *Server) renderLogin(c *gin.Context, status int, message string) {
	c.HTML(status, "login.html", gin.H{
		"Title": "Sign in",
		"Error": message,
		"Email": c.PostForm("email"),
	})
}

func (s *Server) loginPage(c *gin.Context) {
	if s.lookupSession(c) != nil {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	s.renderLogin(c, http.StatusOK, "")
}

func (s *Server) login(c *gin.Context) {
	session, err := s.auth.SignIn(c.Request.Context(), c.PostForm("email"), c.PostForm("password"))
	if err != nil {
		s.log.Info().Err(err).Msg("sign-in rejected")
		s.renderLogin(c, loginStatus(err), identity.UserMessage(err))
		return
	}
	if err := s.setSessionCookie(c, session); err != nil {
		s.log.Error().Err(err).Msg("could not seal session cookie")
		s.renderLogin(c, http.StatusInternalServerError, identity.MessageLoginFailed)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func loginStatus(err error) int {
	var rejected *identity.RejectedError
	if errors.As(err, &rejected) && rejected.Reason != identity.ReasonInternal {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func (s *Server) logout(c *gin.Context) {
	if token := s.tokenFrom(c); token != "" {
		if err := s.auth.SignOut(c.Request.Context(), token); err != nil {
			s.log.Warn().Err(err).Msg("sign-out failed")
		}
	}
	s.clearSessionCookie(c)
	c.Redirect(http.StatusSeeOther, "/login")
}

// criteriaFrom reads start, end and type. An empty type selects all.
func criteriaFrom(c *gin.Context) (leads.Criteria, error) {
	r, err := leads.ParseDateRange(c.Query("start"), c.Query("end"))
	if err != nil {
		return leads.Criteria{}, err
	}
	formType := c.Query("type")
	if formType == "" {
		formType = leads.AllTypes
	}
	return leads.Criteria{Range: r, FormType: formType}, nil
}

func hasFilterParams(c *gin.Context) bool {
	q := c.Request.URL.Query()
	return q.Has("start") || q.Has("end") || q.Has("type")
}

// filterQuery encodes criteria so that following the link recomputes the
// mounted list instead of re-probing.
func filterQuery(cr leads.Criteria) string {
	v := url.Values{}
	v.Set("type", cr.FormType)
	v.Set("start", formatDay(cr.Range.Start))
	v.Set("end", formatDay(cr.Range.End))
	return v.Encode()
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(leads.DateLayout)
}

func diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var none *leads.NoLeadsError
	if errors.As(err, &none) {
		msg := "No leads found. Checked collections: " + strings.Join(none.Candidates, ", ") + "."
		if none.Last != nil {
			msg += fmt.Sprintf(" Last error: %v", none.Last)
		}
		return msg
	}
	return fmt.Sprintf("Failed to load leads: %v", err)
}

// dashboardPage mounts the board on a plain visit and only refilters when
// filter parameters are present.
func (s *Server) dashboardPage(c *gin.Context) {
	ws := workspaceOf(c)
	ctx := c.Request.Context()

	if !hasFilterParams(c) {
		ws.Board.SetCriteria(leads.DefaultCriteria())
		_ = ws.Board.Load(ctx)
		s.renderDashboard(c, http.StatusOK, "")
		return
	}

	if !ws.Board.Loaded() {
		_ = ws.Board.Load(ctx)
	}
	cr, err := criteriaFrom(c)
	if err != nil {
		s.renderDashboard(c, http.StatusBadRequest, messageBadDates)
		return
	}
	ws.Board.SetCriteria(cr)
	s.renderDashboard(c, http.StatusOK, "")
}

func (s *Server) renderDashboard(c *gin.Context, status int, notice string) {
	view := workspaceOf(c).Board.View()
	s.render(c, status, "dashboard.html", "Dashboard", gin.H{
		"View":       view,
		"Start":      formatDay(view.Criteria.Range.Start),
		"End":        formatDay(view.Criteria.Range.End),
		"Type":       view.Criteria.FormType,
		"Filter":     filterQuery(view.Criteria),
		"Diagnostic": diagnostic(view.Err),
		"Notice":     notice,
	})
}

func (s *Server) deleteLeadForm(c *gin.Context) {
	ws := workspaceOf(c)
	if err := ws.Board.Delete(c.Request.Context(), s.store, c.Param("id")); err != nil {
		s.log.Warn().Err(err).Str("id", c.Param("id")).Msg("lead delete failed")
		status := statusOf(err)
		if errors.Is(err, leads.ErrLeadNotFound) {
			status = http.StatusNotFound
		}
		s.renderDashboard(c, status, messageLeadDelFailed)
		return
	}
	c.Redirect(http.StatusSeeOther, "/?"+filterQuery(ws.Board.View().Criteria))
}

func (s *Server) pipelinePage(c *gin.Context) {
	ws := workspaceOf(c)
	if !ws.Board.Loaded() {
		_ = ws.Board.Load(c.Request.Context())
	}
	view := ws.Board.View()
	s.render(c, http.StatusOK, "pipeline.html", "Pipeline", gin.H{
		"Columns":    leads.Pipeline(view.Visible),
		"Diagnostic": diagnostic(view.Err),
	})
}

func (s *Server) blogPage(c *gin.Context) {
	ws := workspaceOf(c)
	notice := ""
	if err := ws.Blog.Load(c.Request.Context()); err != nil {
		s.log.Warn().Err(err).Msg("blog list failed")
		notice = messagePostsLoadFailed
	}
	s.renderBlog(c, http.StatusOK, notice, blog.Draft{})
}

func (s *Server) renderBlog(c *gin.Context, status int, notice string, draft blog.Draft) {
	if draft.Date == "" {
		draft.Date = time.Now().UTC().Format(time.DateOnly)
	}
	s.render(c, status, "blog.html", "Blog", gin.H{
		"Posts":  workspaceOf(c).Blog.Posts(),
		"Draft":  draft,
		"Notice": notice,
	})
}

func (s *Server) createPostForm(c *gin.Context) {
	var draft blog.Draft
	if err := c.ShouldBind(&draft); err != nil {
		s.renderBlog(c, http.StatusBadRequest, messageDraftInvalid, draft)
		return
	}
	if _, err := workspaceOf(c).Blog.Create(c.Request.Context(), draft); err != nil {
		if errors.Is(err, blog.ErrInvalidDraft) {
			s.renderBlog(c, http.StatusBadRequest, messageDraftInvalid, draft)
			return
		}
		s.log.Error().Err(err).Msg("post create failed")
		s.renderBlog(c, statusOf(err), messagePostSaveFailed, draft)
		return
	}
	c.Redirect(http.StatusSeeOther, "/blog")
}

// deletePostForm renders the listing in place; the deleted post is dropped
// from it without a re-read.
func (s *Server) deletePostForm(c *gin.Context) {
	if err := workspaceOf(c).Blog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.log.Error().Err(err).Msg("post delete failed")
		s.renderBlog(c, statusOf(err), messagePostDelFailed, blog.Draft{})
		return
	}
	s.renderBlog(c, http.StatusOK, "", blog.Draft{})
}

func (s *Server) postPage(c *gin.Context) {
	post, err := s.blog.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		status, notice := postFailure(err)
		s.render(c, status, "post.html", "Blog", gin.H{"Notice": notice})
		return
	}
	s.render(c, http.StatusOK, "post.html", post.Title, gin.H{"Post": post})
}

func postFailure(err error) (int, string) {
	if errors.Is(err, blog.ErrPostNotFound) {
		return http.StatusNotFound, messagePostNotFound
	}
	return http.StatusInternalServerError, messagePostLoadFailed
}

func (s *Server) seoPage(c *gin.Context) {
	settings, err := s.seo.Load(c.Request.Context())
	data := gin.H{"Settings": settings}
	if err != nil {
		s.log.Warn().Err(err).Msg("seo load failed")
		data["Error"] = seo.MessageLoadFailed
	}
	s.render(c, http.StatusOK, "seo.html", "SEO Settings", data)
}

func (s *Server) saveSEOForm(c *gin.Context) {
	var settings seo.Settings
	if err := c.ShouldBind(&settings); err != nil {
		s.render(c, http.StatusBadRequest, "seo.html", "SEO Settings", gin.H{
			"Settings": settings,
			"Error":    seo.MessageSaveFailed,
		})
		return
	}
	if err := s.seo.Save(c.Request.Context(), settings); err != nil {
		s.log.Error().Err(err).Msg("seo save failed")
		s.render(c, statusOf(err), "seo.html", "SEO Settings", gin.H{
			"Settings": settings,
			"Error":    seo.MessageSaveFailed,
		})
		return
	}
	s.render(c, http.StatusOK, "seo.html", "SEO Settings", gin.H{
		"Settings": settings,
		"Notice":   seo.MessageSaved,
	})
}
