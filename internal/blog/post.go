// Package blog manages the posts of the public site. Posts live in the
// "blogs" collection keyed by slug.
package blog

import (
	"regexp"
	"strings"
)

// Collection holds one document per post.
const Collection = "blogs"

// Post is a stored blog post. ID is the document key and may differ from
// Slug for posts written by other tools.
type Post struct {
	ID       string `json:"id,omitempty"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	Content  string `json:"content"`
	Date     string `json:"date"`
	Author   string `json:"author"`
	Category string `json:"category"`
	Image    string `json:"image"`
}

// Path is the public path of the post detail page.
func (p Post) Path() string {
	if p.Slug != "" {
		return "/blog/" + p.Slug
	}
	return "/blog/" + p.ID
}

// Draft is the create form.
type Draft struct {
	Title    string `json:"title" form:"title" validate:"required"`
	Slug     string `json:"slug" form:"slug"`
	Excerpt  string `json:"excerpt" form:"excerpt"`
	Content  string `json:"content" form:"content" validate:"required"`
	Date     string `json:"date" form:"date" validate:"omitempty,datetime=2006-01-02"`
	Author   string `json:"author" form:"author"`
	Category string `json:"category" form:"category"`
	Image    string `json:"image" form:"image"`
}

var (
	whitespaceRun = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)
	nonSlugChars  = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// Slugify lowercases title, turns whitespace runs (Unicode spaces included)
// into "-" and strips
// everything except letters, digits, "_" and "-".
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = whitespaceRun.ReplaceAllString(s, "-")
	return nonSlugChars.ReplaceAllString(s, "")
}
