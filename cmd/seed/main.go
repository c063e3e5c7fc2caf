// Package main provides a tool to seed the database with development data.
//
// This creates a small tag hierarchy, a set of approved problems and a few
// verified subscribers so the delivery pipeline can be exercised end to end.
//
// Usage:
//
//	DATABASE_PATH=codedrip.db go run ./cmd/seed
//	DATABASE_PATH=codedrip.db go run ./cmd/seed --create-users  # Also create test subscribers
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/id"
	"github.com/codedrip/codedrip-server/internal/service"
	"github.com/codedrip/codedrip-server/internal/store/sqlite"
)

var createUsers = flag.Bool("create-users", false, "Create test subscribers for pipeline testing")

// tagEdges defines the seeded hierarchy as parent name -> child names.
var tagEdges = map[string][]string{
	"programming": {"python", "javascript", "go"},
	"algorithms":  {"graphs", "dynamic programming", "sorting"},
	"python":      {"asyncio"},
}

// seedProblem is one problem fixture with its tag names.
type seedProblem struct {
	title       string
	description string
	difficulty  string
	solution    string
	tags        []string
}

var seedProblems = []seedProblem{
	{
		title:       "Two Sum",
		description: "Given an array of integers and a target, return indices of the two numbers that add up to the target.",
		difficulty:  "easy",
		solution:    "Walk the array once keeping a map from value to index. For each element check whether target minus the element was already seen.",
		tags:        []string{"algorithms", "python"},
	},
	{
		title:       "Course Schedule",
		description: "Given course prerequisite pairs, determine whether all courses can be finished.",
		difficulty:  "medium",
		solution:    "Model prerequisites as a directed graph and run a topological sort. A cycle means the schedule is impossible.",
		tags:        []string{"graphs"},
	},
	{
		title:       "Coin Change",
		description: "Given coin denominations and an amount, compute the fewest coins needed to make up that amount.",
		difficulty:  "medium",
		solution:    "Bottom-up table over amounts 0..n where each entry is one more than the best reachable smaller amount.",
		tags:        []string{"dynamic programming"},
	},
	{
		title:       "Merge Intervals",
		description: "Given a list of intervals, merge all overlapping intervals.",
		difficulty:  "easy",
		solution:    "Sort by start, then sweep once extending the current interval while the next one overlaps.",
		tags:        []string{"sorting", "algorithms"},
	},
	{
		title:       "Rate Limiter",
		description: "Design a concurrent token bucket rate limiter with per-key buckets.",
		difficulty:  "hard",
		solution:    "Keep a bucket per key behind a mutex, refill lazily on each request based on elapsed time, and evict idle buckets periodically.",
		tags:        []string{"go"},
	},
	{
		title:       "Gather with Timeout",
		description: "Run several coroutines concurrently and collect their results, cancelling the rest when one fails.",
		difficulty:  "medium",
		solution:    "Wrap the tasks in a task group so a failure cancels siblings, and bound the whole group with a timeout.",
		tags:        []string{"asyncio"},
	},
}

// testSubscribers are email/tag pairs for generated test users.
var testSubscribers = []struct {
	email string
	tags  []string
}{
	{"dev1@example.com", []string{"programming"}},
	{"dev2@example.com", []string{"python", "algorithms"}},
	{"dev3@example.com", []string{"graphs"}},
	{"dev4@example.com", nil},
}

func main() {
	flag.Parse()

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "codedrip.db"
	}

	fmt.Printf("Opening database at: %s\n", dbPath)

	s, err := sqlite.Open(dbPath, slog.New(slog.DiscardHandler))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	tags := service.NewTagService(s, slog.New(slog.DiscardHandler))

	// Tags and hierarchy first so problems can reference them by name.
	tagIDs := make(map[string]string)
	lookupTag := func(name string) string {
		if tagID, ok := tagIDs[name]; ok {
			return tagID
		}
		tag, created, err := tags.FindOrCreateTag(ctx, name)
		if err != nil {
			log.Fatalf("Failed to create tag %q: %v", name, err)
		}
		if created {
			fmt.Printf("  Created tag: %s (%s)\n", tag.Name, tag.ID)
		}
		tagIDs[name] = tag.ID
		return tag.ID
	}

	fmt.Println("\n=== Seeding Tags ===")
	for parent, children := range tagEdges {
		parentID := lookupTag(parent)
		for _, child := range children {
			childID := lookupTag(child)
			if _, err := tags.AddEdge(ctx, parentID, childID, domain.EdgeRelationshipHierarchy); err != nil {
				// Re-running the seed hits existing edges; that is fine.
				fmt.Printf("  Edge %s -> %s: %v\n", parent, child, err)
				continue
			}
			fmt.Printf("  Linked %s -> %s\n", parent, child)
		}
	}

	fmt.Println("\n=== Seeding Problems ===")
	now := time.Now()
	for _, p := range seedProblems {
		problemTagIDs := make([]string, 0, len(p.tags))
		for _, name := range p.tags {
			problemTagIDs = append(problemTagIDs, lookupTag(name))
		}

		problem := &domain.Problem{
			ID:          id.MustGenerate("prob"),
			Title:       p.title,
			Description: p.description,
			Difficulty:  p.difficulty,
			Status:      domain.ProblemStatusApproved,
			TagIDs:      problemTagIDs,
			Solution:    p.solution,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := s.CreateProblem(ctx, problem); err != nil {
			log.Printf("  Failed to create problem %q: %v", p.title, err)
			continue
		}
		fmt.Printf("  Created problem: %s [%s]\n", p.title, p.difficulty)
	}

	if *createUsers {
		fmt.Println("\n=== Creating Test Subscribers ===")
		for _, sub := range testSubscribers {
			if existing, _ := s.GetUserByEmail(ctx, sub.email); existing != nil {
				fmt.Printf("  Subscriber %s already exists, skipping\n", sub.email)
				continue
			}

			subTagIDs := make([]string, 0, len(sub.tags))
			for _, name := range sub.tags {
				subTagIDs = append(subTagIDs, lookupTag(name))
			}

			user := &domain.User{
				ID:            id.MustGenerate("usr"),
				Email:         sub.email,
				Active:        true,
				EmailVerified: true,
				TagIDs:        subTagIDs,
				CreatedAt:     now,
				UpdatedAt:     now,
			}

			if err := s.CreateUser(ctx, user); err != nil {
				log.Printf("  Failed to create subscriber %s: %v", sub.email, err)
				continue
			}
			fmt.Printf("  Created subscriber: %s (%d tags)\n", sub.email, len(subTagIDs))
		}
	}

	fmt.Println("\nSeeding complete!")
}
