package blog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

var (
	// ErrInvalidDraft wraps every validation failure of Create.
	ErrInvalidDraft = errors.New("invalid blog post")
	// ErrPostNotFound is returned by Get when neither lookup matches.
	ErrPostNotFound = fmt.Errorf("blog post not found: %w", docstore.ErrNotFound)
)

// Store is the part of the document store the blog needs.
type Store interface {
	docstore.DocWriter
	docstore.Querier
}

type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		validate: validator.New(),
		now:      time.Now,
		log:      log.With().Str("component", "blog").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every post, newest date first. When the store cannot order
// by date the collection is read unordered and sorted here.
func (s *Service) List(ctx context.Context) ([]Post, error) {
	docs, err := s.store.Query(ctx, Collection, docstore.OrderedBy("date", docstore.Desc))
	if errors.Is(err, docstore.ErrMissingIndex) {
		s.log.Warn().Err(err).Msg("ordered blog read refused, sorting in memory")
		docs, err = s.store.Query(ctx, Collection, docstore.Query{})
		if err != nil {
			return nil, fmt.Errorf("list posts: %w", err)
		}
		posts := decodeAll(docs, s.log)
		sort.SliceStable(posts, func(i, j int) bool { return posts[i].Date > posts[j].Date })
		return posts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return decodeAll(docs, s.log), nil
}

// Create validates d and writes it to blogs/<slug> as a full overwrite. An
// existing post with the same slug is replaced.
func (s *Service) Create(ctx context.Context, d Draft) (Post, error) {
	if err := s.validate.Struct(d); err != nil {
		return Post{}, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}

	slug := strings.TrimSpace(d.Slug)
	if slug == "" {
		slug = Slugify(d.Title)
	}
	if err := docstore.ValidateKey(slug); err != nil {
		return Post{}, fmt.Errorf("%w: slug %q is not usable", ErrInvalidDraft, slug)
	}

	date := d.Date
	if date == "" {
		date = s.now().UTC().Format(time.DateOnly)
	}

	post := Post{
		Slug:     slug,
		Title:    d.Title,
		Excerpt:  d.Excerpt,
		Content:  d.Content,
		Date:     date,
		Author:   d.Author,
		Category: d.Category,
		Image:    d.Image,
	}
	if err := docstore.Set(ctx, s.store, Collection, slug, post); err != nil {
		return Post{}, fmt.Errorf("create post %s: %w", slug, err)
	}
	s.log.Info().Str("slug", slug).Msg("post created")

	post.ID = slug
	return post, nil
}

// Delete removes blogs/<id>.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, Collection, id); err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	s.log.Info().Str("id", id).Msg("post deleted")
	return nil
}

// Get finds a post by slug, then by document id. The slug query runs first,
// so a post whose slug equals another post's id shadows it. A failure of the
// id scan is reported as ErrPostNotFound.
func (s *Service) Get(ctx context.Context, param string) (Post, error) {
	docs, err := s.store.Query(ctx, Collection, docstore.WhereEqual("slug", param).WithLimit(1))
	if err != nil {
		return Post{}, fmt.Errorf("load post %s: %w", param, err)
	}
	if len(docs) > 0 {
		return decode(docs[0])
	}

	// Full scan of the collection; acceptable at blog scale.
	all, err := s.store.Query(ctx, Collection, docstore.Query{})
	if err != nil {
		s.log.Warn().Err(err).Str("param", param).Msg("id scan failed")
		return Post{}, ErrPostNotFound
	}
	for _, d := range all {
		if d.ID == param {
			return decode(d)
		}
	}
	return Post{}, ErrPostNotFound
}

func decode(d docstore.Document) (Post, error) {
	p, err := docstore.Decode[Post](d.Data)
	if err != nil {
		return Post{}, err
	}
	p.ID = d.ID
	return p, nil
}

// decodeAll skips documents that do not decode as posts.
func decodeAll(docs []docstore.Document, log zerolog.Logger) []Post {
	out := make([]Post, 0, len(docs))
	for _, d := range docs {
		p, err := decode(d)
		if err != nil {
			log.Warn().Err(err).Str("id", d.ID).Msg("skipping malformed post")
			continue
		}
		out = append(out, p)
	}
	return out
}
