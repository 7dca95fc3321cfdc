// Package web is the CRM's navigation shell: the session-gated HTML screens
// and the JSON API over the same operations.
//
// Screens: / (dashboard), /pipeline, /blog, /blog/:slug, /seo, /login.
// Without a session every screen renders the login form. Unknown paths
// redirect to /.
package web

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/trendingmotion/motion-crm/internal/blog"
	"github.com/trendingmotion/motion-crm/internal/leads"
	"github.com/trendingmotion/motion-crm/internal/seo"
	"github.com/trendingmotion/motion-crm/internal/vault"
	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

//go:embed templates/*.html
var templateFS embed.FS

type Options struct {
	// Candidates are the lead collections probed in order; empty means
	// leads.DefaultCandidates.
	Candidates []string
	// SessionKey seals the session cookie. It must be vault.KeySize bytes.
	SessionKey     []byte
	SecureCookies  bool
	AllowedOrigins []string
}

type Server struct {
	store docstore.Store
	auth  Authenticator
	opts  Options
	log   zerolog.Logger

	ingester   *leads.Ingester
	blog       *blog.Service
	seo        *seo.Service
	workspaces *workspaces
	unsub      func()

	engine *gin.Engine
}

// New builds the router and subscribes to session changes. Call Close to
// unsubscribe.
func New(store docstore.Store, auth Authenticator, opts Options, log zerolog.Logger) (*Server, error) {
	if len(opts.SessionKey) != vault.KeySize {
		return nil, errors.New("web: session key must be 32 bytes")
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:    store,
		auth:     auth,
		opts:     opts,
		log:      log.With().Str("component", "web").Logger(),
		ingester: leads.NewIngester(store, opts.Candidates, log),
		blog:     blog.NewService(store, log),
		seo:      seo.NewService(store, log),
	}
	s.workspaces = newWorkspaces(func() *Workspace {
		return &Workspace{
			Board: leads.NewBoard(s.ingester),
			Blog:  blog.NewListing(s.blog),
		}
	})
	s.unsub = auth.Subscribe(s.workspaces.onSessionEvent)

	r := gin.New()
	r.Use(requestID(), accessLog(s.log), gin.Recovery(), cors(opts.AllowedOrigins))
	r.SetHTMLTemplate(tmpl)
	s.routes(r)
	s.engine = r
	return s, nil
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/public/seo", s.getSEO)

	r.GET("/login", s.loginPage)
	r.POST("/login", s.login)
	r.POST("/logout", s.logout)

	screens := r.Group("/", s.requireScreenSession())
	{
		screens.GET("/", s.dashboardPage)
		screens.POST("/leads/:id/delete", s.deleteLeadForm)
		screens.GET("/pipeline", s.pipelinePage)
		screens.GET("/blog", s.blogPage)
		screens.POST("/blog", s.createPostForm)
		screens.GET("/blog/:slug", s.postPage)
		screens.POST("/blog/:id/delete", s.deletePostForm)
		screens.GET("/seo", s.seoPage)
		screens.POST("/seo", s.saveSEOForm)
	}

	r.POST("/api/session", s.apiSignIn)
	api := r.Group("/api", s.requireAPISession())
	{
		api.GET("/session", s.apiSession)
		api.DELETE("/session", s.apiSignOut)
		api.GET("/leads", s.apiLeads)
		api.GET("/leads/stats", s.apiLeadStats)
		api.DELETE("/leads/:collection/:id", s.apiDeleteLead)
		api.GET("/pipeline", s.apiPipeline)
		api.GET("/blogs", s.apiBlogs)
		api.POST("/blogs", s.apiCreatePost)
		api.GET("/blogs/:slug", s.apiPost)
		api.DELETE("/blogs/:id", s.apiDeletePost)
		api.GET("/seo", s.getSEO)
		api.PUT("/seo", s.apiSaveSEO)
	}

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			fail(c, http.StatusNotFound, "API route not found", c.Request.URL.Path)
			return
		}
		c.Redirect(http.StatusFound, "/")
	})
}

// Handler returns the HTTP handler of the shell.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close removes the session subscription.
func (s *Server) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

func (s *Server) health(c *gin.Context) {
	ok(c, gin.H{"status": "ok", "time": time.Now().UTC()}, "")
}
