package score

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marketlens/kwscout/internal/domain"
	"github.com/marketlens/kwscout/internal/retry"
)

type mockStore struct {
	records  map[string]domain.KeywordRecord
	failures int32
	calls    int32
	persists [][]domain.KeywordRecord
}

func (m *mockStore) LookupByText(_ context.Context, texts []string) ([]domain.KeywordRecord, error) {
	if atomic.AddInt32(&m.calls, 1) <= m.failures {
		return nil, errors.New("store transient failure")
	}
	var out []domain.KeywordRecord
	for _, t := range texts {
		if r, ok := m.records[domain.NormalizeKeyword(t)]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) Persist(_ context.Context, records []domain.KeywordRecord) error {
	m.persists = append(m.persists, records)
	return nil
}

func withMetrics(text string, volume int64, cpc float64) domain.KeywordRecord {
	return domain.KeywordRecord{
		Text:          text,
		NormalizedKey: domain.NormalizeKeyword(text),
		Metrics: &domain.MarketMetrics{
			Volume:      volume,
			Competition: 50,
			CPC:         cpc,
			TopPageBid:  cpc * 1.5,
			GrowthYoY:   10,
		},
	}
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestScoreKeywords_SortedByOpportunity(t *testing.T) {
	store := &mockStore{records: map[string]domain.KeywordRecord{
		"small keyword": withMetrics("small keyword", 100, 0.5),
		"big keyword":   withMetrics("big keyword", 100000, 4),
	}}
	svc := New(store, fastRetry(), nil)

	got, err := svc.ScoreKeywords(context.Background(), []string{"small keyword", "big keyword"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Text != "big keyword" {
		t.Errorf("expected big keyword ranked first, got %q", got[0].Text)
	}
	for _, k := range got {
		if k.Opportunity == nil {
			t.Fatalf("keyword %q missing opportunity metrics", k.Text)
		}
	}
	if got[0].Opportunity.OpportunityScore <= got[1].Opportunity.OpportunityScore {
		t.Errorf("results not sorted: %g <= %g",
			got[0].Opportunity.OpportunityScore, got[1].Opportunity.OpportunityScore)
	}
}

func TestScoreKeywords_UnknownKeywordsTrailUnscored(t *testing.T) {
	store := &mockStore{records: map[string]domain.KeywordRecord{
		"known keyword": withMetrics("known keyword", 1000, 2),
	}}
	svc := New(store, fastRetry(), nil)

	got, err := svc.ScoreKeywords(context.Background(), []string{"mystery phrase", "known keyword"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Text != "known keyword" || got[0].Opportunity == nil {
		t.Errorf("expected scored keyword first, got %+v", got[0])
	}
	if got[1].Text != "mystery phrase" || got[1].Opportunity != nil {
		t.Errorf("expected unscored keyword last, got %+v", got[1])
	}
}

func TestScoreKeywords_RetriesTransientLookup(t *testing.T) {
	store := &mockStore{
		records:  map[string]domain.KeywordRecord{"known keyword": withMetrics("known keyword", 1000, 2)},
		failures: 2,
	}
	svc := New(store, fastRetry(), nil)

	got, err := svc.ScoreKeywords(context.Background(), []string{"known keyword"})
	if err != nil {
		t.Fatalf("expected retries to absorb failures: %v", err)
	}
	if len(got) != 1 || got[0].Opportunity == nil {
		t.Errorf("unexpected result: %+v", got)
	}
	if store.calls != 3 {
		t.Errorf("expected 3 lookup attempts, got %d", store.calls)
	}
}

func TestScoreKeywords_EmptyInput(t *testing.T) {
	svc := New(&mockStore{}, fastRetry(), nil)

	got, err := svc.ScoreKeywords(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil result, got %v", got)
	}
}

func TestPersistMetrics(t *testing.T) {
	store := &mockStore{}
	svc := New(store, fastRetry(), nil)

	records := []domain.KeywordRecord{withMetrics("new keyword", 500, 1)}
	if err := svc.PersistMetrics(context.Background(), records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.persists) != 1 || len(store.persists[0]) != 1 {
		t.Errorf("expected one persisted batch, got %v", store.persists)
	}
}
