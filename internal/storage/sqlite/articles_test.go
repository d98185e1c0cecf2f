package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

func TestSubmitArticleDuplicate(t *testing.T) {
	env := newTestEnv(t)

	a := env.SubmitArticle("Acme raises $50M", "https://example.com/acme-50m")
	if a.ID == 0 {
		t.Fatal("expected article ID to be set")
	}

	dup := &types.Article{
		URL:     "https://example.com/acme-50m",
		Title:   "Acme raises $50M",
		Content: "different body",
	}
	if _, err := env.Store.SubmitArticle(env.Ctx, dup); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for same URL, got %v", err)
	}

	// Same content under a different URL is also a duplicate (content hash).
	sameBody := &types.Article{
		URL:     "https://mirror.example.com/acme-50m",
		Title:   "Acme raises $50M",
		Content: "Body of Acme raises $50M",
	}
	if _, err := env.Store.SubmitArticle(env.Ctx, sameBody); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for same content hash, got %v", err)
	}

	got, err := env.Store.GetArticleByURL(env.Ctx, "https://example.com/acme-50m")
	if err != nil {
		t.Fatalf("GetArticleByURL failed: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("expected article %d, got %d", a.ID, got.ID)
	}
	if got.ClassificationStatus != types.ClassificationPending {
		t.Errorf("expected pending classification, got %s", got.ClassificationStatus)
	}
	if got.ExtractionStatus != types.ExtractionPending {
		t.Errorf("expected pending extraction, got %s", got.ExtractionStatus)
	}
}

func TestSetClassificationIsSetOnce(t *testing.T) {
	env := newTestEnv(t)
	a := env.SubmitArticle("Acme acquires Widget Co", "https://example.com/acme-widget")

	err := env.Store.SetClassification(env.Ctx, a.ID, types.EventAcquisition, 0.9, true, []string{"acquires"})
	if err != nil {
		t.Fatalf("SetClassification failed: %v", err)
	}

	// A second verdict must not overwrite the first.
	err = env.Store.SetClassification(env.Ctx, a.ID, types.EventLayoff, 0.2, false, nil)
	if err != nil {
		t.Fatalf("second SetClassification failed: %v", err)
	}

	got, err := env.Store.GetArticle(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if got.EventType != types.EventAcquisition {
		t.Errorf("expected acquisition, got %s", got.EventType)
	}
	if !got.IsHighSignal {
		t.Error("expected article to stay high-signal")
	}
	if got.ClassificationStatus != types.ClassificationDone {
		t.Errorf("expected classified status, got %s", got.ClassificationStatus)
	}
	if len(got.MatchedKeywords) != 1 || got.MatchedKeywords[0] != "acquires" {
		t.Errorf("unexpected keywords: %v", got.MatchedKeywords)
	}
}

func TestHighSignalPendingExcludesFailed(t *testing.T) {
	env := newTestEnv(t)

	a := env.SubmitHighSignal("Acme raises $50M", "https://example.com/a", types.EventFunding)
	b := env.SubmitHighSignal("Widget Co acquired", "https://example.com/b", types.EventAcquisition)
	env.SubmitArticle("Weather report", "https://example.com/c")

	if err := env.Store.MarkArticleFailed(env.Ctx, b.ID, "extractor returned garbage"); err != nil {
		t.Fatalf("MarkArticleFailed failed: %v", err)
	}

	pending, err := env.Store.HighSignalPending(env.Ctx, 0)
	if err != nil {
		t.Fatalf("HighSignalPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Fatalf("expected only article %d pending, got %d articles", a.ID, len(pending))
	}

	failed, err := env.Store.FailedArticles(env.Ctx, 0)
	if err != nil {
		t.Fatalf("FailedArticles failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != b.ID {
		t.Fatalf("expected article %d in failed set, got %d articles", b.ID, len(failed))
	}
	if failed[0].FailureReason != "extractor returned garbage" {
		t.Errorf("unexpected failure reason: %q", failed[0].FailureReason)
	}
}

func TestClaimNextArticle(t *testing.T) {
	env := newTestEnv(t)

	a := env.SubmitHighSignal("Acme raises $50M", "https://example.com/a", types.EventFunding)

	claimed, err := env.Store.ClaimNextArticle(env.Ctx, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextArticle failed: %v", err)
	}
	if claimed.ID != a.ID {
		t.Fatalf("expected article %d, got %d", a.ID, claimed.ID)
	}

	// The claim blocks a second worker.
	if _, err := env.Store.ClaimNextArticle(env.Ctx, time.Hour); !errors.Is(err, storage.ErrNoPendingWork) {
		t.Fatalf("expected ErrNoPendingWork while claimed, got %v", err)
	}

	// A claim left by a crashed worker expires and becomes claimable again.
	_, err = env.Store.UnderlyingDB().ExecContext(env.Ctx,
		"UPDATE articles SET claimed_at = datetime('now', '-10 minutes') WHERE id = ?", a.ID)
	if err != nil {
		t.Fatalf("failed to backdate claim: %v", err)
	}
	reclaimed, err := env.Store.ClaimNextArticle(env.Ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextArticle after expiry failed: %v", err)
	}
	if reclaimed.ID != a.ID {
		t.Fatalf("expected article %d reclaimed, got %d", a.ID, reclaimed.ID)
	}

	// Releasing the claim makes it immediately available.
	if err := env.Store.ReleaseClaim(env.Ctx, a.ID); err != nil {
		t.Fatalf("ReleaseClaim failed: %v", err)
	}
	again, err := env.Store.ClaimNextArticle(env.Ctx, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextArticle after release failed: %v", err)
	}
	if again.ID != a.ID {
		t.Fatalf("expected article %d, got %d", a.ID, again.ID)
	}
}

func TestClaimOrderFollowsFeedPriority(t *testing.T) {
	env := newTestEnv(t)

	low := &types.Article{
		URL: "https://example.com/low", Title: "Low priority funding",
		Content: "body low", FeedPriority: 5,
	}
	if _, err := env.Store.SubmitArticle(env.Ctx, low); err != nil {
		t.Fatalf("SubmitArticle failed: %v", err)
	}
	high := &types.Article{
		URL: "https://example.com/high", Title: "High priority funding",
		Content: "body high", FeedPriority: 1,
	}
	if _, err := env.Store.SubmitArticle(env.Ctx, high); err != nil {
		t.Fatalf("SubmitArticle failed: %v", err)
	}
	for _, id := range []int64{low.ID, high.ID} {
		if err := env.Store.SetClassification(env.Ctx, id, types.EventFunding, 0.8, true, nil); err != nil {
			t.Fatalf("SetClassification failed: %v", err)
		}
	}

	first, err := env.Store.ClaimNextArticle(env.Ctx, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextArticle failed: %v", err)
	}
	if first.ID != high.ID {
		t.Errorf("expected high priority article %d first, got %d", high.ID, first.ID)
	}
}

func TestMarkExtractedIsGuarded(t *testing.T) {
	env := newTestEnv(t)
	a := env.SubmitHighSignal("Acme raises $50M", "https://example.com/a", types.EventFunding)

	if err := env.Store.MarkArticleFailed(env.Ctx, a.ID, "schema violation"); err != nil {
		t.Fatalf("MarkArticleFailed failed: %v", err)
	}

	// Extracted cannot be set from the failed state.
	if err := env.Store.MarkArticleExtracted(env.Ctx, a.ID); err != nil {
		t.Fatalf("MarkArticleExtracted failed: %v", err)
	}
	got, err := env.Store.GetArticle(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if got.ExtractionStatus != types.ExtractionFailed {
		t.Fatalf("expected status to stay failed, got %s", got.ExtractionStatus)
	}

	// Reset puts it back in the pending scan.
	if err := env.Store.ResetArticle(env.Ctx, a.ID); err != nil {
		t.Fatalf("ResetArticle failed: %v", err)
	}
	got, err = env.Store.GetArticle(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if got.ExtractionStatus != types.ExtractionPending {
		t.Fatalf("expected pending after reset, got %s", got.ExtractionStatus)
	}
	if got.FailureReason != "" {
		t.Errorf("expected failure reason cleared, got %q", got.FailureReason)
	}

	if err := env.Store.MarkArticleExtracted(env.Ctx, a.ID); err != nil {
		t.Fatalf("MarkArticleExtracted failed: %v", err)
	}
	got, err = env.Store.GetArticle(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if got.ExtractionStatus != types.ExtractionExtracted {
		t.Fatalf("expected extracted, got %s", got.ExtractionStatus)
	}
	if got.ExtractedAt == nil {
		t.Error("expected extracted_at to be set")
	}
}

func TestResetArticleRequiresFailedState(t *testing.T) {
	env := newTestEnv(t)
	a := env.SubmitArticle("Acme raises $50M", "https://example.com/a")

	if err := env.Store.ResetArticle(env.Ctx, a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound resetting a pending article, got %v", err)
	}
}

func TestArticleStats(t *testing.T) {
	env := newTestEnv(t)

	env.SubmitArticle("Unclassified piece", "https://example.com/u")
	a := env.SubmitHighSignal("Acme raises $50M", "https://example.com/a", types.EventFunding)
	b := env.SubmitHighSignal("Widget Co acquired", "https://example.com/b", types.EventAcquisition)
	env.SubmitHighSignal("Layoffs at Gadget", "https://example.com/c", types.EventLayoff)

	if err := env.Store.MarkArticleExtracted(env.Ctx, a.ID); err != nil {
		t.Fatalf("MarkArticleExtracted failed: %v", err)
	}
	if err := env.Store.MarkArticleFailed(env.Ctx, b.ID, "bad json"); err != nil {
		t.Fatalf("MarkArticleFailed failed: %v", err)
	}

	stats, err := env.Store.ArticleStats(env.Ctx)
	if err != nil {
		t.Fatalf("ArticleStats failed: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("expected 4 total, got %d", stats.Total)
	}
	if stats.Unclassified != 1 {
		t.Errorf("expected 1 unclassified, got %d", stats.Unclassified)
	}
	if stats.HighSignal != 3 {
		t.Errorf("expected 3 high-signal, got %d", stats.HighSignal)
	}
	if stats.PendingExtraction != 1 {
		t.Errorf("expected 1 pending extraction, got %d", stats.PendingExtraction)
	}
	if stats.Extracted != 1 {
		t.Errorf("expected 1 extracted, got %d", stats.Extracted)
	}
	if stats.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", stats.Failed)
	}
	if stats.ByEventType["funding"] != 1 || stats.ByEventType["acquisition"] != 1 {
		t.Errorf("unexpected event type counts: %v", stats.ByEventType)
	}
}

func TestSearchArticlesByFilter(t *testing.T) {
	env := newTestEnv(t)

	env.SubmitHighSignal("Acme raises $50M", "https://example.com/a", types.EventFunding)
	env.SubmitHighSignal("Widget Co acquired", "https://example.com/b", types.EventAcquisition)
	env.SubmitArticle("Weather report", "https://example.com/c")

	funding := types.EventFunding
	got, err := env.Store.SearchArticles(env.Ctx, types.ArticleFilter{EventType: &funding})
	if err != nil {
		t.Fatalf("SearchArticles failed: %v", err)
	}
	if len(got) != 1 || got[0].URL != "https://example.com/a" {
		t.Fatalf("expected the funding article, got %d articles", len(got))
	}

	pending := types.ClassificationPending
	got, err = env.Store.SearchArticles(env.Ctx, types.ArticleFilter{ClassificationStatus: &pending})
	if err != nil {
		t.Fatalf("SearchArticles failed: %v", err)
	}
	if len(got) != 1 || got[0].URL != "https://example.com/c" {
		t.Fatalf("expected the unclassified article, got %d articles", len(got))
	}
}
