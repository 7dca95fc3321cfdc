// Package seo stores the site-wide metadata settings in the singleton
// document settings/seo.
package seo

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

const (
	Collection = "settings"
	DocumentID = "seo"
)

// Messages shown on the settings screen.
const (
	MessageLoadFailed = "Failed to load SEO settings. Please check your database permissions."
	MessageSaveFailed = "Failed to save SEO settings. Please try again."
	MessageSaved      = "SEO settings saved successfully."
)

// Settings is the global metadata consumed by the public site.
type Settings struct {
	Title             string `json:"title" form:"title"`
	Description       string `json:"description" form:"description"`
	Keywords          string `json:"keywords" form:"keywords"`
	Author            string `json:"author" form:"author"`
	OGTitle           string `json:"ogTitle" form:"ogTitle"`
	OGDescription     string `json:"ogDescription" form:"ogDescription"`
	OGImage           string `json:"ogImage" form:"ogImage"`
	TwitterHandle     string `json:"twitterHandle" form:"twitterHandle"`
	TargetAudience    string `json:"targetAudience" form:"targetAudience"`
	CanonicalURL      string `json:"canonicalUrl" form:"canonicalUrl"`
	RobotsTxt         string `json:"robotsTxt" form:"robotsTxt"`
	GoogleAnalyticsID string `json:"googleAnalyticsId" form:"googleAnalyticsId"`
}

// Defaults are shown until settings have been saved once.
func Defaults() Settings {
	return Settings{RobotsTxt: "index, follow"}
}

// Store is the part of the document store the settings need.
type Store interface {
	docstore.DocReader
	docstore.DocWriter
}

type Service struct {
	store Store
	log   zerolog.Logger
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log.With().Str("component", "seo").Logger()}
}

// Load returns the stored settings, or Defaults when none were saved. A
// stored document replaces the defaults as a whole.
func (s *Service) Load(ctx context.Context) (Settings, error) {
	settings, err := docstore.Get[Settings](ctx, s.store, Collection, DocumentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), fmt.Errorf("load seo settings: %w", err)
	}
	return settings, nil
}

// Save overwrites the settings document. Last write wins.
func (s *Service) Save(ctx context.Context, settings Settings) error {
	if err := docstore.Set(ctx, s.store, Collection, DocumentID, settings); err != nil {
		return fmt.Errorf("save seo settings: %w", err)
	}
	s.log.Info().Msg("seo settings saved")
	return nil
}
