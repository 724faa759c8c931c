package core

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/fedragon/go-neardup/internal/models"
)

func TestPruneDropsMissingAssets(t *testing.T) {
	cat := &memCatalog{
		assets: []models.AssetRecord{
			{ID: "a"}, {ID: "b"}, {ID: "d"},
		},
	}
	groups := []models.DuplicateGroup{
		makeGroup(models.SimilarityExact, 1.0, "a", "b", "c"),
		makeGroup(models.SimilaritySimilar, 0.8, "d", "e"),
	}

	pruned, err := Prune(context.Background(), cat, groups, zap.NewNop())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}

	if len(pruned) != 1 {
		t.Fatalf("expected 1 group but got %v instead", len(pruned))
	}
	if pruned[0].ID != "a|b" {
		t.Errorf("expected recomputed id a|b but got %v instead", pruned[0].ID)
	}
	if pruned[0].Similarity != models.SimilarityExact {
		t.Errorf("expected classification preserved, got %v instead", pruned[0].Similarity)
	}
}

func TestPruneKeepsIntactGroups(t *testing.T) {
	cat := &memCatalog{
		assets: []models.AssetRecord{
			{ID: "a"}, {ID: "b"},
		},
	}
	groups := []models.DuplicateGroup{
		makeGroup(models.SimilarityExact, 1.0, "a", "b"),
	}

	pruned, err := Prune(context.Background(), cat, groups, zap.NewNop())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}

	if len(pruned) != 1 || pruned[0].ID != "a|b" {
		t.Errorf("expected group untouched, got %v", pruned)
	}
}

func TestPruneIsIdempotent(t *testing.T) {
	cat := &memCatalog{
		assets: []models.AssetRecord{
			{ID: "a"}, {ID: "b"}, {ID: "c"},
		},
	}
	groups := []models.DuplicateGroup{
		makeGroup(models.SimilarityExact, 1.0, "a", "b", "gone"),
		makeGroup(models.SimilarityExact, 1.0, "c", "also-gone"),
	}

	once, err := Prune(context.Background(), cat, groups, zap.NewNop())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	twice, err := Prune(context.Background(), cat, once, zap.NewNop())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}

	if len(once) != len(twice) {
		t.Fatalf("expected stable group count, got %v then %v", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Errorf("expected stable ids, got %v then %v", once[i].ID, twice[i].ID)
		}
		if len(once[i].Items) != len(twice[i].Items) {
			t.Errorf("expected stable membership for %v", once[i].ID)
		}
	}
}

func TestPruneEmptyInput(t *testing.T) {
	pruned, err := Prune(context.Background(), &memCatalog{failAll: true}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("expected no catalog access for empty input, got %v", err)
	}
	if pruned != nil {
		t.Errorf("expected nil but got %v instead", pruned)
	}
}

func TestPruneCatalogFailure(t *testing.T) {
	groups := []models.DuplicateGroup{
		makeGroup(models.SimilarityExact, 1.0, "a", "b"),
	}

	_, err := Prune(context.Background(), &memCatalog{failAll: true}, groups, zap.NewNop())
	if err == nil {
		t.Errorf("expected an error when the catalog is unavailable")
	}
}

func TestRemoveAssets(t *testing.T) {
	groups := []models.DuplicateGroup{
		makeGroup(models.SimilarityExact, 1.0, "a", "b", "c"),
		makeGroup(models.SimilaritySimilar, 0.8, "d", "e"),
	}

	result := RemoveAssets(groups, []string{"c", "e"})

	if len(result) != 1 {
		t.Fatalf("expected 1 group but got %v instead", len(result))
	}
	if result[0].ID != "a|b" {
		t.Errorf("expected id a|b but got %v instead", result[0].ID)
	}
}

func TestRemoveAssetsNoOp(t *testing.T) {
	groups := []models.DuplicateGroup{
		makeGroup(models.SimilarityExact, 1.0, "a", "b"),
	}

	result := RemoveAssets(groups, []string{"unrelated"})

	if len(result) != 1 || result[0].ID != "a|b" {
		t.Errorf("expected group untouched, got %v", result)
	}
}
