package seeds

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/marketlens/kwscout/internal/domain"
	"github.com/marketlens/kwscout/internal/retry"
)

// --- Mocks ---

type mockGenerator struct {
	text     string
	failures int // errors returned before the first success
	calls    int
	prompts  []string
}

func (m *mockGenerator) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.calls++
	m.prompts = append(m.prompts, req.Prompt)
	if m.calls <= m.failures {
		return domain.CompletionResult{}, errors.New("upstream unavailable")
	}
	return domain.CompletionResult{Text: m.text}, nil
}

// mockEmbedder returns a fixed vector per text, defaulting to a unit vector.
type mockEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return domain.EmbeddingResult{Embedding: v}, nil
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

// --- Tests ---

func TestGenerateSeeds_BlankPitch(t *testing.T) {
	svc := New(&mockGenerator{}, &mockEmbedder{}, Options{Retry: fastRetry()}, nil)

	for _, pitch := range []string{"", "   ", "\n\t"} {
		if _, err := svc.GenerateSeeds(context.Background(), pitch, domain.Facets{}); !errors.Is(err, domain.ErrEmptyPitch) {
			t.Errorf("pitch %q: expected ErrEmptyPitch, got %v", pitch, err)
		}
	}
}

func TestGenerateSeeds_RankedBySimilarity(t *testing.T) {
	gen := &mockGenerator{text: "meeting notes\ncall summary\ncrm integration"}
	emb := &mockEmbedder{vectors: map[string][]float32{
		"AI meeting notes": {1, 0},
		"meeting notes":    {1, 0},          // similarity 1.0
		"call summary":     {0.6, 0.8},      // similarity 0.6
		"crm integration":  {0.9, 0.4358899}, // similarity ~0.9
	}}
	svc := New(gen, emb, Options{Retry: fastRetry()}, nil)

	got, err := svc.GenerateSeeds(context.Background(), "AI meeting notes", domain.Facets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []string{"meeting notes", "crm integration", "call summary"}
	if len(got) != len(wantOrder) {
		t.Fatalf("expected %d candidates, got %d", len(wantOrder), len(got))
	}
	for i, want := range wantOrder {
		if got[i].Seed != want {
			t.Errorf("position %d: expected %q, got %q", i, want, got[i].Seed)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].SimilarityToPitch > got[i-1].SimilarityToPitch {
			t.Errorf("candidates not sorted at %d: %g > %g",
				i, got[i].SimilarityToPitch, got[i-1].SimilarityToPitch)
		}
	}
}

func TestGenerateSeeds_RetriesTransientGeneration(t *testing.T) {
	gen := &mockGenerator{text: "meeting notes\ncall summary", failures: 2}
	svc := New(gen, &mockEmbedder{}, Options{Retry: fastRetry()}, nil)

	got, err := svc.GenerateSeeds(context.Background(), "pitch text", domain.Facets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.calls != 3 {
		t.Errorf("expected 3 generation calls, got %d", gen.calls)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(got))
	}
}

func TestGenerateSeeds_ExhaustedRetriesIsFatal(t *testing.T) {
	gen := &mockGenerator{failures: 100}
	svc := New(gen, &mockEmbedder{}, Options{Retry: fastRetry()}, nil)

	_, err := svc.GenerateSeeds(context.Background(), "pitch text", domain.Facets{})
	if !errors.Is(err, domain.ErrSeedGeneration) {
		t.Fatalf("expected ErrSeedGeneration, got %v", err)
	}
	if gen.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", gen.calls)
	}
}

func TestGenerateSeeds_NoUsablePhrases(t *testing.T) {
	// Every line violates the phrase bounds.
	gen := &mockGenerator{text: "single\nway too many words in this line here"}
	svc := New(gen, &mockEmbedder{}, Options{Retry: fastRetry()}, nil)

	_, err := svc.GenerateSeeds(context.Background(), "pitch text", domain.Facets{})
	if !errors.Is(err, domain.ErrSeedGeneration) {
		t.Fatalf("expected ErrSeedGeneration for empty parse, got %v", err)
	}
}

func TestGenerateSeeds_DropsDuplicatePhrases(t *testing.T) {
	gen := &mockGenerator{text: "meeting notes\nMeeting  Notes\ncall summary"}
	svc := New(gen, &mockEmbedder{}, Options{Retry: fastRetry()}, nil)

	got, err := svc.GenerateSeeds(context.Background(), "pitch text", domain.Facets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected duplicates collapsed to 2 candidates, got %d", len(got))
	}
}

func TestGenerateSeeds_PromptIncludesFacets(t *testing.T) {
	gen := &mockGenerator{text: "meeting notes"}
	svc := New(gen, &mockEmbedder{}, Options{SeedCount: 7, Retry: fastRetry()}, nil)

	facets := domain.Facets{
		Topics:      []string{"sales"},
		Personas:    []string{"account executive"},
		PainPoints:  []string{"manual note taking"},
		Features:    []string{"auto summary"},
		Competitors: []string{"otter"},
	}
	if _, err := svc.GenerateSeeds(context.Background(), "AI meeting notes", facets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt := gen.prompts[0]
	for _, want := range []string{"AI meeting notes", "sales", "account executive", "manual note taking", "auto summary", "otter", "7"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerateSeeds_EmbeddingFailureSurfaces(t *testing.T) {
	gen := &mockGenerator{text: "meeting notes\ncall summary"}
	emb := &mockEmbedder{err: errors.New("embedding down")}
	svc := New(gen, emb, Options{Retry: fastRetry()}, nil)

	if _, err := svc.GenerateSeeds(context.Background(), "pitch text", domain.Facets{}); err == nil {
		t.Fatal("expected error when embedding fails")
	}
}
