package content_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-arena/internal/content"
)

func TestLoader_LoadItems(t *testing.T) {
	dir := setupTestContent(t)

	loader, err := content.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if got := len(loader.List(content.KindLesson)); got != 2 {
		t.Errorf("List(lesson) = %d items, want 2", got)
	}
	if got := len(loader.List(content.KindChallenge)); got != 1 {
		t.Errorf("List(challenge) = %d items, want 1", got)
	}
}

func TestLoader_Get(t *testing.T) {
	dir := setupTestContent(t)

	loader, err := content.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	ch, err := loader.Get(content.KindChallenge, "c1")
	if err != nil {
		t.Fatalf("Get(challenge, c1) error = %v", err)
	}
	if ch.ReferenceSolution == "" {
		t.Error("ReferenceSolution is empty")
	}
	if ch.TotalTests() != 3 {
		t.Errorf("TotalTests() = %d, want 3", ch.TotalTests())
	}
	if !ch.HasTag("PRINT") {
		t.Error("HasTag(PRINT) = false, want true")
	}
}

func TestLoader_Get_NotFound(t *testing.T) {
	dir := setupTestContent(t)

	loader, err := content.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	_, err = loader.Get(content.KindChallenge, "missing")
	if !errors.Is(err, content.ErrItemNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrItemNotFound", err)
	}

	// Ids are scoped by kind.
	_, err = loader.Get(content.KindChallenge, "l1")
	if !errors.Is(err, content.ErrItemNotFound) {
		t.Errorf("Get(challenge, l1) error = %v, want ErrItemNotFound", err)
	}
}

func TestLoader_ListSortedByOrder(t *testing.T) {
	dir := setupTestContent(t)

	loader, err := content.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	lessons := loader.List(content.KindLesson)
	if lessons[0].ID != "l1" || lessons[1].ID != "l2" {
		t.Errorf("List(lesson) order = [%s %s], want [l1 l2]", lessons[0].ID, lessons[1].ID)
	}
}

func TestLoader_SkipsInvalidItems(t *testing.T) {
	dir := setupTestContent(t)

	// Challenge without a reference solution.
	os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
kind: challenge
id: bad
title: Broken
difficulty: Easy
xp_reward: 10
order: 9
`), 0o644)
	os.WriteFile(filepath.Join(dir, "garbage.yaml"), []byte("::: not yaml :::\n\t- ["), 0o644)

	loader, err := content.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if _, err := loader.Get(content.KindChallenge, "bad"); err == nil {
		t.Error("invalid challenge should be skipped")
	}
}

func TestLoader_EmptyDir(t *testing.T) {
	loader, err := content.NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if got := len(loader.List(content.KindLesson)); got != 0 {
		t.Errorf("List(lesson) = %d, want 0 for empty dir", got)
	}
}

func TestItem_Validate(t *testing.T) {
	valid := content.Item{
		Kind:              content.KindChallenge,
		ID:                "c1",
		ReferenceSolution: "print(x)",
		Difficulty:        content.DifficultyEasy,
		XPReward:          10,
	}

	tests := []struct {
		name    string
		mutate  func(*content.Item)
		wantErr bool
	}{
		{"valid", func(*content.Item) {}, false},
		{"missing id", func(it *content.Item) { it.ID = "" }, true},
		{"unknown kind", func(it *content.Item) { it.Kind = "quiz" }, true},
		{"zero xp", func(it *content.Item) { it.XPReward = 0 }, true},
		{"negative unlock", func(it *content.Item) { it.UnlockXPRequired = -1 }, true},
		{"no solution", func(it *content.Item) { it.ReferenceSolution = "  " }, true},
		{"bad difficulty", func(it *content.Item) { it.Difficulty = "Insane" }, true},
		{"lesson without solution", func(it *content.Item) {
			it.Kind = content.KindLesson
			it.ReferenceSolution = ""
			it.Difficulty = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := valid
			tt.mutate(&it)
			if err := it.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	if k, err := content.ParseKind(" Lesson "); err != nil || k != content.KindLesson {
		t.Errorf("ParseKind(Lesson) = %q, %v", k, err)
	}
	if _, err := content.ParseKind("quiz"); err == nil {
		t.Error("ParseKind(quiz) should fail")
	}
}

func TestNewStaticCatalog_Duplicate(t *testing.T) {
	it := content.Item{Kind: content.KindLesson, ID: "l1", XPReward: 10, Order: 1}
	if _, err := content.NewStaticCatalog(it, it); err == nil {
		t.Error("NewStaticCatalog() should reject duplicate ids")
	}
}

func setupTestContent(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	pathDir := filepath.Join(dir, "python", "basics")
	os.MkdirAll(pathDir, 0o755)

	os.WriteFile(filepath.Join(pathDir, "lessons.yaml"), []byte(`
items:
  - kind: lesson
    id: l2
    title: "Variables"
    xp_reward: 20
    order: 2
  - kind: lesson
    id: l1
    title: "Hello, World"
    xp_reward: 10
    order: 1
`), 0o644)

	os.WriteFile(filepath.Join(pathDir, "c1.yaml"), []byte(`
kind: challenge
id: c1
title: "Say hello"
description: "Print hello to the console"
language: python
difficulty: Easy
xp_reward: 15
order: 1
unlock_xp_required: 0
tags: [print]
reference_solution: |
  print("hello")
tests:
  - description: prints hello
    expected_output: hello
  - description: single line
  - description: no trailing spaces
`), 0o644)

	return dir
}
