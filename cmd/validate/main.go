// Command validate checks a place seed file and, optionally, a snapshot
// document against it before they are deployed. It verifies that the seed
// parses, that coordinates are plausible, and that every snapshot entry
// refers to a seeded place with a level matching its count.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -seed data/places.json \
//	  -snapshot data/snapshot.json
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/couchcryptid/place-state-hub/internal/seed"
	"github.com/couchcryptid/place-state-hub/internal/snapshot"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	seedPath := flag.String("seed", "data/places.json", "path to the place seed (JSON or TOML)")
	snapshotPath := flag.String("snapshot", "", "optional path to a snapshot document")
	flag.Parse()

	if *seedPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(os.Stdout, *seedPath, *snapshotPath))
}

func run(out io.Writer, seedPath, snapshotPath string) int {
	fmt.Fprintln(out, "=== Place Data Validation ===")
	fmt.Fprintln(out)

	places, err := seed.Load(seedPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load seed: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateSeed(places),
		validateCoordinates(places),
	}

	var doc snapshot.Document
	if snapshotPath != "" {
		data, err := os.ReadFile(snapshotPath)
		if err != nil {
			fmt.Fprintf(out, "FATAL: read snapshot: %v\n", err)
			return 1
		}
		doc, err = snapshot.Decode(data)
		if err != nil {
			fmt.Fprintf(out, "FATAL: %v\n", err)
			return 1
		}
		phases = append(phases, validateSnapshot(places, doc))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-32s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Records: %d seeded places, %d snapshot places\n", len(places), len(doc.Places))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// validateSeed checks attributes the loader accepts but operators should fix.
func validateSeed(places []domain.Place) *phase {
	p := &phase{name: "Seed attributes"}
	for _, pl := range places {
		if pl.Name == "" {
			p.errorf("%s: missing name", pl.ID)
		}
		if pl.CrowdCount > pl.Capacity*10 {
			p.errorf("%s: crowdCount %d is more than ten times capacity %d", pl.ID, pl.CrowdCount, pl.Capacity)
		}
	}
	return p
}

// validateCoordinates flags duplicated coordinates, which usually mean a
// copy-paste error, and a seed where nearby search can never return anything.
func validateCoordinates(places []domain.Place) *phase {
	p := &phase{name: "Coordinates"}
	seen := make(map[domain.Geo]string)
	located := 0
	for _, pl := range places {
		if !pl.HasCoordinates() {
			continue
		}
		located++
		if other, ok := seen[*pl.Geo]; ok {
			p.errorf("%s: same coordinates as %s (%.5f, %.5f)", pl.ID, other, pl.Geo.Lat, pl.Geo.Lon)
			continue
		}
		seen[*pl.Geo] = pl.ID
	}
	if located < 2 && len(places) > 1 {
		p.errorf("only %d of %d places have coordinates; nearby search needs at least two", located, len(places))
	}
	return p
}

// validateSnapshot checks a snapshot against the seed it will be restored onto.
func validateSnapshot(places []domain.Place, doc snapshot.Document) *phase {
	p := &phase{name: "Snapshot consistency"}
	if doc.Version != snapshot.FormatVersion {
		p.errorf("version %d, want %d", doc.Version, snapshot.FormatVersion)
	}
	byID := make(map[string]domain.Place, len(places))
	for _, pl := range places {
		byID[pl.ID] = pl
	}
	for _, s := range doc.Places {
		seeded, ok := byID[s.ID]
		if !ok {
			p.errorf("%s: not in seed, will be ignored on restore", s.ID)
			continue
		}
		if want := domain.Classify(s.CrowdCount, seeded.Capacity); s.CrowdLevel != want {
			p.errorf("%s: level %s disagrees with count %d at capacity %d (want %s)",
				s.ID, s.CrowdLevel, s.CrowdCount, seeded.Capacity, want)
		}
	}
	return p
}
