package sdk

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trendingmotion/motion-crm/internal/config"
	"github.com/trendingmotion/motion-crm/internal/engine"
	"github.com/trendingmotion/motion-crm/internal/fsstore"
	"github.com/trendingmotion/motion-crm/internal/mongostore"
	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

// Backend names accepted by Open.
const (
	BackendEmbedded  = "embedded"
	BackendRemote    = "remote"
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
)

// Options selects and configures a document store backend.
type Options struct {
	Backend string

	// embedded
	DataDir       string
	StrictIndexes bool
	Indexes       engine.Indexes

	// remote
	Addr   string
	UseTLS bool

	// firestore
	FirestoreProject     string
	FirestoreCredentials string

	// mongo
	MongoURI      string
	MongoDatabase string
}

// OptionsFromConfig maps the store section of the configuration. The lead
// candidates become the declared indexes of a strict embedded store.
func OptionsFromConfig(cfg config.StoreConfig, leadCollections []string) Options {
	return Options{
		Backend:              cfg.Backend,
		DataDir:              cfg.DataDir,
		StrictIndexes:        cfg.StrictIndexes,
		Indexes:              engine.DefaultIndexes(leadCollections),
		Addr:                 cfg.Addr,
		UseTLS:               !cfg.DisableTLS,
		FirestoreProject:     cfg.FirestoreProject,
		FirestoreCredentials: cfg.FirestoreCredentials,
		MongoURI:             cfg.MongoURI,
		MongoDatabase:        cfg.MongoDatabase,
	}
}

// Open initializes the store selected by opts.
// It returns the interface, so the app doesn't care where documents live.
func Open(ctx context.Context, opts Options, log zerolog.Logger) (docstore.Store, error) {
	log = log.With().Str("backend", opts.Backend).Logger()

	switch opts.Backend {
	case BackendRemote:
		client, err := Connect(opts.Addr, opts.UseTLS)
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", opts.Addr).Bool("tls", opts.UseTLS).Msg("connected to docstored")
		return client, nil

	case BackendFirestore:
		s, err := fsstore.Open(ctx, opts.FirestoreProject, opts.FirestoreCredentials)
		if err != nil {
			return nil, err
		}
		log.Info().Str("project", opts.FirestoreProject).Msg("using firestore")
		return s, nil

	case BackendMongo:
		s, err := mongostore.Open(ctx, opts.MongoURI, opts.MongoDatabase)
		if err != nil {
			return nil, err
		}
		log.Info().Str("database", opts.MongoDatabase).Msg("using mongodb")
		return s, nil

	case BackendEmbedded, "":
		// The same engine the daemon runs, inside the app process
		store, err := engine.Open(opts.DataDir, log)
		if err != nil {
			return nil, err
		}
		if opts.StrictIndexes {
			store.EnforceIndexes(opts.Indexes)
		}
		log.Info().Str("data_dir", opts.DataDir).Bool("strict_indexes", opts.StrictIndexes).Msg("using embedded store")
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
