package blog

import (
	"context"
	"sync"
)

// Listing is the blog screen state: the posts as last read and the last
// load failure.
type Listing struct {
	svc *Service

	mu     sync.Mutex
	loaded bool
	posts  []Post
	err    error
}

func NewListing(svc *Service) *Listing {
	return &Listing{svc: svc}
}

// Load re-reads the collection.
func (l *Listing) Load(ctx context.Context) error {
	posts, err := l.svc.List(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = true
	l.err = err
	if err == nil {
		l.posts = posts
	}
	return err
}

// Loaded reports whether Load has run.
func (l *Listing) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Posts returns a copy of the listing.
func (l *Listing) Posts() []Post {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Post{}, l.posts...)
}

// Err is the failure of the last Load, if any.
func (l *Listing) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Create writes the draft and re-reads the listing.
func (l *Listing) Create(ctx context.Context, d Draft) (Post, error) {
	post, err := l.svc.Create(ctx, d)
	if err != nil {
		return Post{}, err
	}
	return post, l.Load(ctx)
}

// Delete removes the post from the store and from the listing without
// re-reading.
func (l *Listing) Delete(ctx context.Context, id string) error {
	if err := l.svc.Delete(ctx, id); err != nil {
		return err
	}
	l.Remove(id)
	return nil
}

// Remove drops a post from the listing.
func (l *Listing) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, p := range l.posts {
		if p.ID == id {
			l.posts = append(l.posts[:i:i], l.posts[i+1:]...)
			return true
		}
	}
	return false
}
