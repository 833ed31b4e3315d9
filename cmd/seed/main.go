// Package main provides a tool to seed the database with demo reading data.
//
// It creates a demo admin account, a few novels with chapters, and sample
// annotations, bookmarks, and reading positions so the API, sync endpoints,
// and search index have something to chew on during development.
//
// Usage:
//
//	DB_PATH=~/Folio/data/folio.db go run ./cmd/seed
//	DB_PATH=~/Folio/data/folio.db go run ./cmd/seed --email=me@example.com --password=secret
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/folioapp/folio-server/internal/auth"
	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/id"
	"github.com/folioapp/folio-server/internal/store/sqlite"
	"github.com/folioapp/folio-server/internal/util"
)

var (
	email    = flag.String("email", "demo@folio.local", "Email for the demo admin account")
	password = flag.String("password", "folio-demo", "Password for the demo admin account")
)

func main() {
	flag.Parse()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/Folio/data/folio.db")
	}

	fmt.Printf("Opening database at: %s\n", dbPath)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := sqlite.Open(dbPath, logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()

	if _, err := s.InitializeInstance(ctx, "Folio Dev Server", "1.0.0"); err != nil {
		log.Fatalf("Failed to initialize instance: %v", err)
	}

	user := ensureDemoUser(ctx, s)
	fmt.Printf("Demo user: %s (%s)\n", user.DisplayName, user.Email)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	novels := seedNovels(ctx, s, user.ID)
	for _, novel := range novels {
		seedAnnotations(ctx, s, rng, user.ID, novel)
		seedBookmarks(ctx, s, rng, user.ID, novel)
		seedPosition(ctx, s, rng, user.ID, novel)
	}

	fmt.Println("\nSeeding complete!")
	fmt.Printf("Log in with %s / %s\n", *email, *password)
}

// ensureDemoUser creates the demo admin account if it does not exist yet.
func ensureDemoUser(ctx context.Context, s *sqlite.Store) *domain.User {
	if existing, err := s.GetUserByEmail(ctx, *email); err == nil {
		fmt.Println("Demo user already exists, reusing")
		return existing
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	now := time.Now()
	root := false
	if count, err := s.CountUsers(ctx); err == nil && count == 0 {
		root = true
	}

	user := &domain.User{
		Syncable: domain.Syncable{
			ID:        id.MustGenerate("usr"),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Email:        *email,
		PasswordHash: hash,
		IsRoot:       root,
		Role:         domain.RoleAdmin,
		DisplayName:  "Demo Reader",
	}

	if err := s.CreateUser(ctx, user); err != nil {
		log.Fatalf("Failed to create demo user: %v", err)
	}

	if root {
		if inst, err := s.GetInstance(ctx); err == nil && !inst.HasRootUser {
			inst.MarkRootUserCreated()
			if err := s.UpdateInstance(ctx, inst); err != nil {
				log.Printf("Failed to mark instance setup complete: %v", err)
			}
		}
	}

	return user
}

// demoNovel describes one seeded novel and its chapter titles.
type demoNovel struct {
	title    string
	author   string
	desc     string
	source   string
	status   domain.NovelStatus
	tags     []string
	chapters []string
}

var demoNovels = []demoNovel{
	{
		title:  "The Cartographer's Apprentice",
		author: "M. Elsworth",
		desc:   "An apprentice mapmaker discovers that the blank spaces on her master's charts are not unexplored, but erased.",
		source: "https://example-fiction.net/novels/cartographers-apprentice",
		status: domain.NovelStatusOngoing,
		tags:   []string{"fantasy", "mystery"},
		chapters: []string{
			"The Unfinished Coast",
			"Ink That Remembers",
			"A Meridian of Lies",
			"The Surveyor's Debt",
			"What the Compass Refused",
		},
	},
	{
		title:  "Quiet Orbit",
		author: "J. Okafor",
		desc:   "A maintenance engineer on a decommissioned relay station keeps receiving messages addressed to a crew that never existed.",
		source: "https://example-fiction.net/novels/quiet-orbit",
		status: domain.NovelStatusCompleted,
		tags:   []string{"scifi"},
		chapters: []string{
			"Station Keeping",
			"Addressee Unknown",
			"Telemetry Ghosts",
			"The Manifest",
		},
	},
	{
		title:  "Ash Garden",
		author: "R. Halloran",
		desc:   "After the fires, the only things that grow in the valley are plants nobody planted.",
		source: "https://example-fiction.net/novels/ash-garden",
		status: domain.NovelStatusOngoing,
		tags:   []string{"horror", "slow-burn"},
		chapters: []string{
			"First Shoots",
			"The Gardener's Hands",
			"Root Systems",
		},
	},
}

// chapterParagraphs are reused across seeded chapters to produce plausible text.
var chapterParagraphs = []string{
	"The morning settled over the town the way dust settles over an attic, slow and total and unremarked. Nobody watched it happen. Nobody ever did.",
	"She counted the steps twice and got different numbers both times, which was either a problem with the stairs or a problem with her, and she knew better than to investigate which.",
	"There are instruments for measuring almost everything, he had told her once. Distance, weight, the salt in seawater. The trick is knowing which measurements you are better off not taking.",
	"The letter was short. It did not apologize, or explain, or ask anything of her. It simply stated, in a clerk's careful hand, that the account had been settled in full.",
	"By the third day the sound had become familiar enough that its absence woke her. She lay still in the dark, listening to the nothing, and understood that something had changed its mind.",
	"He kept the old charts in a drawer that he never locked, which she eventually understood was its own kind of lock. Some things are protected by how casually they are left out.",
	"The market smelled of rain on hot stone and overripe fruit. She bought nothing, said nothing, and was remembered by no one, which was exactly as she had practiced.",
	"It is a particular kind of loneliness, tending machines that outlived their purpose. They do not thank you. They simply fail a little more slowly than they otherwise would.",
}

// seedNovels creates the demo novels with chapter content.
func seedNovels(ctx context.Context, s *sqlite.Store, ownerID string) []*domain.Novel {
	now := time.Now()
	created := make([]*domain.Novel, 0, len(demoNovels))

	for _, dn := range demoNovels {
		// Skip if this source URL was already seeded
		if existing, err := s.GetNovelBySourceURL(ctx, ownerID, dn.source); err == nil {
			fmt.Printf("Novel %q already exists, skipping\n", existing.Title)
			created = append(created, existing)
			continue
		}

		novel := &domain.Novel{
			Syncable: domain.Syncable{
				ID:        id.MustGenerate("nvl"),
				CreatedAt: now,
				UpdatedAt: now,
			},
			OwnerID:      ownerID,
			Title:        dn.title,
			Author:       dn.author,
			Description:  dn.desc,
			Slug:         util.Slugify(dn.title),
			SourceURL:    dn.source,
			Language:     "en",
			Status:       dn.status,
			Tags:         dn.tags,
			ChapterCount: len(dn.chapters),
		}

		chapters := make([]domain.Chapter, 0, len(dn.chapters))
		var totalWords int64
		fetchedAt := now

		for idx, title := range dn.chapters {
			content := chapterContent(idx)
			words := len(strings.Fields(content))
			totalWords += int64(words)

			chapters = append(chapters, domain.Chapter{
				NovelID:   novel.ID,
				Index:     idx,
				Title:     title,
				SourceURL: fmt.Sprintf("%s/chapter-%d", dn.source, idx+1),
				Content:   content,
				WordCount: words,
				FetchedAt: &fetchedAt,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}

		novel.WordCount = totalWords
		novel.LastScrapedAt = &fetchedAt

		if err := s.CreateNovel(ctx, novel); err != nil {
			log.Printf("Failed to create novel %q: %v", dn.title, err)
			continue
		}
		if err := s.ReplaceChapters(ctx, novel.ID, chapters); err != nil {
			log.Printf("Failed to store chapters for %q: %v", dn.title, err)
			continue
		}

		fmt.Printf("Created novel: %s (%d chapters, %d words)\n", novel.Title, len(chapters), totalWords)
		created = append(created, novel)
	}

	return created
}

// chapterContent builds markdown-ish chapter text from the paragraph pool.
func chapterContent(chapterIndex int) string {
	var b strings.Builder
	for i := range 5 {
		para := chapterParagraphs[(chapterIndex*3+i)%len(chapterParagraphs)]
		b.WriteString(para)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// seedAnnotations creates highlights and notes scattered across chapters.
func seedAnnotations(ctx context.Context, s *sqlite.Store, rng *rand.Rand, ownerID string, novel *domain.Novel) {
	colors := []domain.AnnotationColor{
		domain.AnnotationColorYellow,
		domain.AnnotationColorGreen,
		domain.AnnotationColorBlue,
	}
	notes := []string{
		"This line again. The author keeps circling back to it.",
		"Foreshadowing?",
		"Compare with the opening of chapter one.",
		"",
	}

	count := 2 + rng.Intn(3)
	now := time.Now()

	for n := range count {
		chapterIdx := rng.Intn(novel.ChapterCount)
		content := chapterContent(chapterIdx)
		start := rng.Intn(max(len(content)-120, 1))
		end := start + 40 + rng.Intn(80)
		if end > len(content) {
			end = len(content)
		}

		kind := domain.AnnotationKindHighlight
		note := ""
		if n%2 == 1 {
			kind = domain.AnnotationKindNote
			note = notes[rng.Intn(len(notes))]
		}

		createdAt := now.Add(-time.Duration(rng.Intn(72)) * time.Hour)
		a := &domain.Annotation{
			ID:           uuid.New().String(),
			OwnerID:      ownerID,
			NovelID:      novel.ID,
			ChapterIndex: chapterIdx,
			Kind:         kind,
			Color:        colors[rng.Intn(len(colors))],
			SelectedText: content[start:end],
			Note:         note,
			StartOffset:  start,
			EndOffset:    end,
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
			SyncedAt:     now,
		}

		if err := s.UpsertAnnotation(ctx, a); err != nil {
			log.Printf("Failed to create annotation: %v", err)
			continue
		}
	}

	fmt.Printf("  Seeded %d annotations for %s\n", count, novel.Title)
}

// seedBookmarks drops a bookmark or two per novel.
func seedBookmarks(ctx context.Context, s *sqlite.Store, rng *rand.Rand, ownerID string, novel *domain.Novel) {
	labels := []string{"Pick up here", "Re-read this scene", ""}
	count := 1 + rng.Intn(2)
	now := time.Now()

	for range count {
		b := &domain.Bookmark{
			Syncable: domain.Syncable{
				ID:        id.MustGenerate("bmk"),
				CreatedAt: now,
				UpdatedAt: now,
			},
			OwnerID:      ownerID,
			NovelID:      novel.ID,
			ChapterIndex: rng.Intn(novel.ChapterCount),
			Offset:       rng.Intn(600),
			Label:        labels[rng.Intn(len(labels))],
		}

		if err := s.CreateBookmark(ctx, b); err != nil {
			log.Printf("Failed to create bookmark: %v", err)
		}
	}

	fmt.Printf("  Seeded %d bookmarks for %s\n", count, novel.Title)
}

// seedPosition records a reading position partway through the novel.
func seedPosition(ctx context.Context, s *sqlite.Store, rng *rand.Rand, ownerID string, novel *domain.Novel) {
	now := time.Now()
	chapterIdx := rng.Intn(novel.ChapterCount)

	pos := &domain.ReadingPosition{
		UserID:       ownerID,
		NovelID:      novel.ID,
		ChapterIndex: chapterIdx,
		Offset:       rng.Intn(600),
		Percent:      (float64(chapterIdx) + rng.Float64()) / float64(novel.ChapterCount),
		UpdatedAt:    now,
		SyncedAt:     now,
	}

	if _, err := s.UpsertPosition(ctx, pos); err != nil {
		log.Printf("Failed to upsert position: %v", err)
		return
	}

	fmt.Printf("  Position: chapter %d of %s\n", chapterIdx+1, novel.Title)
}
