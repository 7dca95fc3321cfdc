// Command crmctl administers a motioncrm deployment through whichever store
// backend the environment configures.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/trendingmotion/motion-crm/internal/blog"
	"github.com/trendingmotion/motion-crm/internal/config"
	"github.com/trendingmotion/motion-crm/internal/engine"
	"github.com/trendingmotion/motion-crm/internal/identity"
	"github.com/trendingmotion/motion-crm/internal/leads"
	"github.com/trendingmotion/motion-crm/internal/logger"
	"github.com/trendingmotion/motion-crm/internal/seo"
	"github.com/trendingmotion/motion-crm/pkg/docstore"
	"github.com/trendingmotion/motion-crm/pkg/sdk"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log, "crmctl")
	ctx := context.Background()

	store, err := sdk.Open(ctx, sdk.OptionsFromConfig(cfg.Store, cfg.Leads.Candidates()), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open document store")
	}
	defer store.Close()

	command := strings.ToUpper(os.Args[1])
	args := os.Args[2:]

	if err := run(ctx, command, args, store, cfg, log); err != nil {
		store.Close()
		log.Fatal().Err(err).Str("command", command).Msg("command failed")
	}
}

func run(ctx context.Context, command string, args []string, store docstore.Store, cfg *config.Config, log zerolog.Logger) error {
	switch command {
	case "GET":
		if len(args) < 2 {
			return usageError("GET <collection> <id>")
		}
		doc, err := store.Get(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		printJSON(doc)

	case "SET":
		if len(args) < 3 {
			return usageError("SET <collection> <id> <json>")
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(args[2]), &doc); err != nil {
			return fmt.Errorf("document must be a JSON object: %w", err)
		}
		if err := store.Set(ctx, args[0], args[1], doc); err != nil {
			return err
		}
		fmt.Println("OK")

	case "DEL":
		if len(args) < 2 {
			return usageError("DEL <collection> <id>")
		}
		if err := store.Delete(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("OK")

	case "COLLECTIONS":
		names, err := store.Collections(ctx)
		if err != nil {
			return err
		}
		printJSON(names)

	case "LEADS":
		res, err := leads.NewIngester(store, cfg.Leads.Candidates(), log).Ingest(ctx)
		if err != nil {
			return err
		}
		printJSON(res)

	case "BLOG_LIST":
		posts, err := blog.NewService(store, log).List(ctx)
		if err != nil {
			return err
		}
		printJSON(posts)

	case "BLOG_GET":
		if len(args) < 1 {
			return usageError("BLOG_GET <slug|id>")
		}
		post, err := blog.NewService(store, log).Get(ctx, args[0])
		if err != nil {
			return err
		}
		printJSON(post)

	case "BLOG_ADD":
		if len(args) < 1 {
			return usageError("BLOG_ADD <json draft>")
		}
		var draft blog.Draft
		if err := json.Unmarshal([]byte(args[0]), &draft); err != nil {
			return fmt.Errorf("draft must be a JSON object: %w", err)
		}
		post, err := blog.NewService(store, log).Create(ctx, draft)
		if err != nil {
			return err
		}
		printJSON(post)

	case "BLOG_DEL":
		if len(args) < 1 {
			return usageError("BLOG_DEL <id>")
		}
		if err := blog.NewService(store, log).Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("OK")

	case "SEO_GET":
		settings, err := seo.NewService(store, log).Load(ctx)
		if err != nil {
			return err
		}
		printJSON(settings)

	case "SEO_SET":
		if len(args) < 1 {
			return usageError("SEO_SET <json fields>")
		}
		svc := seo.NewService(store, log)
		settings, err := svc.Load(ctx)
		if err != nil {
			return err
		}
		// Fields not named keep their stored value.
		if err := json.Unmarshal([]byte(args[0]), &settings); err != nil {
			return fmt.Errorf("settings must be a JSON object: %w", err)
		}
		if err := svc.Save(ctx, settings); err != nil {
			return err
		}
		printJSON(settings)

	case "USER_ADD":
		if len(args) < 2 {
			return usageError("USER_ADD <email> <password> [display name]")
		}
		displayName := strings.Join(args[2:], " ")
		provider := identity.NewProvider(store, identity.NewMemorySessions(), cfg.Identity.TTL(), log)
		user, err := provider.CreateUser(ctx, args[0], args[1], displayName)
		if err != nil {
			return err
		}
		printJSON(user)

	case "EXPORT", "IMPORT":
		if len(args) < 1 {
			return usageError(command + " <dir>")
		}
		local, err := engine.Open(args[0], log)
		if err != nil {
			return err
		}
		defer local.Close()

		var n int
		if command == "EXPORT" {
			n, err = engine.Migrate(ctx, store, local)
		} else {
			n, err = engine.Migrate(ctx, local, store)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%d documents copied\n", n)

	case "PING":
		if p, ok := store.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return err
			}
		} else if _, err := store.Collections(ctx); err != nil {
			return err
		}
		fmt.Println("PONG")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
	return nil
}

func usageError(form string) error {
	return fmt.Errorf("usage: crmctl %s", form)
}

func printUsage() {
	fmt.Println("crmctl - administer a motioncrm document store")
	fmt.Println("\nUsage:")
	fmt.Println("  crmctl GET <collection> <id>")
	fmt.Println("  crmctl SET <collection> <id> <json>")
	fmt.Println("  crmctl DEL <collection> <id>")
	fmt.Println("  crmctl COLLECTIONS")
	fmt.Println("  crmctl LEADS")
	fmt.Println("  crmctl BLOG_LIST")
	fmt.Println("  crmctl BLOG_GET <slug|id>")
	fmt.Println("  crmctl BLOG_ADD <json draft>")
	fmt.Println("  crmctl BLOG_DEL <id>")
	fmt.Println("  crmctl SEO_GET")
	fmt.Println("  crmctl SEO_SET <json fields>")
	fmt.Println("  crmctl USER_ADD <email> <password> [display name]")
	fmt.Println("  crmctl EXPORT <dir>")
	fmt.Println("  crmctl IMPORT <dir>")
	fmt.Println("  crmctl PING")
	fmt.Println("\nEnvironment Variables:")
	fmt.Println("  MOTIONCRM_STORE__BACKEND   embedded, remote, firestore or mongo (default: embedded)")
	fmt.Println("  MOTIONCRM_STORE__ADDR      Address of docstored (default: localhost:7001)")
	fmt.Println("  MOTIONCRM_STORE__DATA_DIR  Data directory of the embedded store (default: ./data)")
}

func printJSON(v any) {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(bytes))
}
