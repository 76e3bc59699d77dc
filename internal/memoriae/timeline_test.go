package memoriae

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func addTagTx(id, tagID, tagName string, offsetSec int) Transaction {
	return tx(id, TypeAddTag, AddTagData{TagID: tagID, TagName: tagName}, offsetSec)
}

func TestBuildTimeline_Grouping(t *testing.T) {
	t.Run("entries within the window merge into one group", func(t *testing.T) {
		txs := []Transaction{
			tx("t0", TypeCreateSeed, CreateSeedData{Content: "x"}, -3600),
			addTagTx("t1", "a", "alpha", 0),
			addTagTx("t2", "b", "beta", 30),
			addTagTx("t3", "c", "gamma", 60),
		}

		groups := BuildTimeline(txs, nil)
		if len(groups) != 2 {
			t.Fatalf("groups = %d, want 2 (tag group + creation)", len(groups))
		}

		tags := groups[0]
		if tags.Title != "Tags Added" {
			t.Errorf("Title = %q, want %q", tags.Title, "Tags Added")
		}
		if tags.Count != 3 {
			t.Errorf("Count = %d, want 3", tags.Count)
		}
		for _, name := range []string{"alpha", "beta", "gamma"} {
			if !strings.Contains(tags.Content, name) {
				t.Errorf("Content %q missing tag %q", tags.Content, name)
			}
		}
		if !tags.Timestamp.Equal(testEpoch.Add(60 * time.Second)) {
			t.Errorf("Timestamp = %v, want the newest member's time", tags.Timestamp)
		}
	})

	t.Run("a gap over the window starts a new group", func(t *testing.T) {
		txs := []Transaction{
			addTagTx("t1", "a", "alpha", 0),
			addTagTx("t2", "b", "beta", 30),
			addTagTx("t3", "c", "gamma", 60),
			addTagTx("t4", "d", "delta", 130), // 70s after t3
		}

		groups := BuildTimeline(txs, nil)
		if len(groups) != 2 {
			t.Fatalf("groups = %d, want 2", len(groups))
		}
		if groups[0].Count != 1 || !strings.Contains(groups[0].Content, "delta") {
			t.Errorf("groups[0] = %+v, want the lone delta entry", groups[0])
		}
		if groups[1].Count != 3 {
			t.Errorf("groups[1].Count = %d, want 3", groups[1].Count)
		}
	})

	t.Run("a different kind interrupts grouping", func(t *testing.T) {
		txs := []Transaction{
			addTagTx("t1", "a", "alpha", 0),
			tx("t2", TypeEditContent, EditContentData{Content: "changed"}, 10),
			addTagTx("t3", "b", "beta", 20),
		}

		groups := BuildTimeline(txs, nil)
		if len(groups) != 3 {
			t.Fatalf("groups = %d, want 3 separate groups", len(groups))
		}
		// Newest first: beta, edit, alpha.
		if groups[0].Kind != string(TypeAddTag) || groups[0].Count != 1 {
			t.Errorf("groups[0] = %+v, want single add_tag", groups[0])
		}
		if groups[1].Kind != string(TypeEditContent) {
			t.Errorf("groups[1].Kind = %q, want edit_content", groups[1].Kind)
		}
		if groups[2].Kind != string(TypeAddTag) || groups[2].Count != 1 {
			t.Errorf("groups[2] = %+v, want single add_tag", groups[2])
		}
	})

	t.Run("groups are ordered newest first", func(t *testing.T) {
		txs := []Transaction{
			tx("t1", TypeCreateSeed, CreateSeedData{Content: "x"}, 0),
			tx("t2", TypeEditContent, EditContentData{Content: "y"}, 3600),
		}

		groups := BuildTimeline(txs, nil)
		if len(groups) != 2 {
			t.Fatalf("groups = %d, want 2", len(groups))
		}
		if !groups[0].Timestamp.After(groups[1].Timestamp) {
			t.Errorf("groups not in descending time order: %v then %v", groups[0].Timestamp, groups[1].Timestamp)
		}
	})
}

func TestBuildTimeline_Summaries(t *testing.T) {
	t.Run("caps displayed tag names at ten", func(t *testing.T) {
		txs := make([]Transaction, 0, 15)
		for i := 0; i < 15; i++ {
			txs = append(txs, addTagTx(fmt.Sprintf("t%02d", i), fmt.Sprintf("id%d", i), fmt.Sprintf("tag%02d", i), i))
		}

		groups := BuildTimeline(txs, nil)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		content := groups[0].Content
		if !strings.HasSuffix(content, "+5 more") {
			t.Errorf("Content = %q, want a +5 more suffix", content)
		}
		if n := strings.Count(content, "tag"); n != 10 {
			t.Errorf("Content lists %d names, want 10", n)
		}
	})

	t.Run("duplicate tag names are deduplicated", func(t *testing.T) {
		txs := []Transaction{
			addTagTx("t1", "a", "alpha", 0),
			addTagTx("t2", "a2", "alpha", 1),
			addTagTx("t3", "b", "beta", 2),
		}

		groups := BuildTimeline(txs, nil)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		if n := strings.Count(groups[0].Content, "alpha"); n != 1 {
			t.Errorf("Content = %q, want alpha listed once", groups[0].Content)
		}
	})

	t.Run("automated transactions mark the group", func(t *testing.T) {
		manual := addTagTx("t1", "a", "alpha", 0)
		automated := addTagTx("t2", "b", "beta", 1)
		automated.AutomationID = "auto-tagger-7"

		groups := BuildTimeline([]Transaction{manual, automated}, nil)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		if !groups[0].Automated {
			t.Error("Automated = false, want true")
		}
		if !strings.Contains(groups[0].Title, "(automated)") {
			t.Errorf("Title = %q, want an (automated) marker", groups[0].Title)
		}
	})

	t.Run("tag removals without names fall back to a count", func(t *testing.T) {
		txs := []Transaction{
			tx("t1", TypeRemoveTag, RemoveTagData{TagID: "a"}, 0),
			tx("t2", TypeRemoveTag, RemoveTagData{TagID: "b"}, 1),
			tx("t3", TypeRemoveTag, RemoveTagData{TagID: "c"}, 2),
		}

		groups := BuildTimeline(txs, nil)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		if groups[0].Content != "3x Tag removed" {
			t.Errorf("Content = %q, want %q", groups[0].Content, "3x Tag removed")
		}
		if groups[0].Title != "Tags Removed" {
			t.Errorf("Title = %q, want %q", groups[0].Title, "Tags Removed")
		}
	})

	t.Run("tag removals with names list them", func(t *testing.T) {
		txs := []Transaction{
			tx("t1", TypeRemoveTag, RemoveTagData{TagID: "a", TagName: "alpha"}, 0),
			tx("t2", TypeRemoveTag, RemoveTagData{TagID: "b", TagName: "beta"}, 1),
		}

		groups := BuildTimeline(txs, nil)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		if !strings.Contains(groups[0].Content, "alpha") || !strings.Contains(groups[0].Content, "beta") {
			t.Errorf("Content = %q, want both names", groups[0].Content)
		}
	})

	t.Run("identical non-tag entries collapse to a count", func(t *testing.T) {
		txs := []Transaction{
			tx("t1", TypeEditContent, EditContentData{Content: "same"}, 0),
			tx("t2", TypeEditContent, EditContentData{Content: "same"}, 1),
			tx("t3", TypeEditContent, EditContentData{Content: "same"}, 2),
		}

		groups := BuildTimeline(txs, nil)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		if groups[0].Content != "3x same" {
			t.Errorf("Content = %q, want %q", groups[0].Content, "3x same")
		}
	})

	t.Run("varied non-tag entries list up to three distinct contents", func(t *testing.T) {
		txs := []Transaction{
			tx("t1", TypeEditContent, EditContentData{Content: "one"}, 0),
			tx("t2", TypeEditContent, EditContentData{Content: "two"}, 1),
			tx("t3", TypeEditContent, EditContentData{Content: "three"}, 2),
			tx("t4", TypeEditContent, EditContentData{Content: "four"}, 3),
			tx("t5", TypeEditContent, EditContentData{Content: "five"}, 4),
		}

		groups := BuildTimeline(txs, nil)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		if !strings.Contains(groups[0].Content, "+2 more") {
			t.Errorf("Content = %q, want a +2 more suffix", groups[0].Content)
		}
	})

	t.Run("single entry passes through unchanged", func(t *testing.T) {
		groups := BuildTimeline([]Transaction{addTagTx("t1", "a", "alpha", 0)}, nil)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		if groups[0].Title != "Tag Added" || groups[0].Content != "Tag: alpha" {
			t.Errorf("group = %+v, want pass-through title and content", groups[0])
		}
	})

	t.Run("malformed payload degrades to placeholder text", func(t *testing.T) {
		bad := Transaction{
			ID:        "t1",
			SubjectID: "seed-1",
			Type:      TypeRemoveTag,
			Data:      json.RawMessage(`{broken`),
			CreatedAt: testEpoch,
		}

		groups := BuildTimeline([]Transaction{bad}, nil)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		if groups[0].Content != "Tag removed" {
			t.Errorf("Content = %q, want placeholder", groups[0].Content)
		}
	})
}

func TestBuildTimeline_Sprouts(t *testing.T) {
	t.Run("sprouts appear as their own entries", func(t *testing.T) {
		sprouts := []Sprout{{
			ID:        "sp-1",
			SeedID:    "seed-1",
			Kind:      SproutMusing,
			Title:     "What if seeds could link?",
			CreatedAt: testEpoch.Add(10 * time.Second),
		}}

		groups := BuildTimeline(nil, sprouts)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		if groups[0].Title != "Musing" {
			t.Errorf("Title = %q, want %q", groups[0].Title, "Musing")
		}
		if groups[0].Content != "What if seeds could link?" {
			t.Errorf("Content = %q, want sprout title", groups[0].Content)
		}
	})

	t.Run("add_sprout markers are dropped when the sprout is present", func(t *testing.T) {
		marker := tx("t1", TypeAddSprout, AddSproutData{SproutID: "sp-1", Kind: SproutFactCheck}, 10)
		sprouts := []Sprout{{
			ID:        "sp-1",
			SeedID:    "seed-1",
			Kind:      SproutFactCheck,
			Title:     "Checked",
			CreatedAt: testEpoch.Add(10 * time.Second),
		}}

		groups := BuildTimeline([]Transaction{marker}, sprouts)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1 (marker deduplicated)", len(groups))
		}
		if groups[0].Kind != "sprout:fact_check" {
			t.Errorf("Kind = %q, want the sprout entry, not the marker", groups[0].Kind)
		}
	})

	t.Run("orphan add_sprout markers still show", func(t *testing.T) {
		marker := tx("t1", TypeAddSprout, AddSproutData{SproutID: "gone"}, 10)

		groups := BuildTimeline([]Transaction{marker}, nil)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		if groups[0].Title != "Sprout Attached" {
			t.Errorf("Title = %q, want %q", groups[0].Title, "Sprout Attached")
		}
	})

	t.Run("same-kind sprouts in a burst group together", func(t *testing.T) {
		sprouts := []Sprout{
			{ID: "sp-1", Kind: SproutMusing, Title: "Idea A", CreatedAt: testEpoch},
			{ID: "sp-2", Kind: SproutMusing, Title: "Idea B", CreatedAt: testEpoch.Add(5 * time.Second)},
		}

		groups := BuildTimeline(nil, sprouts)
		if len(groups) != 1 {
			t.Fatalf("groups = %d, want 1", len(groups))
		}
		if groups[0].Count != 2 {
			t.Errorf("Count = %d, want 2", groups[0].Count)
		}
	})
}

func TestBuildTimelineWindow(t *testing.T) {
	txs := []Transaction{
		addTagTx("t1", "a", "alpha", 0),
		addTagTx("t2", "b", "beta", 30),
	}

	// With a 10s window the 30s gap splits the pair.
	groups := BuildTimelineWindow(txs, nil, 10*time.Second)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2 with a 10s window", len(groups))
	}

	groups = BuildTimelineWindow(txs, nil, time.Minute)
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1 with a 60s window", len(groups))
	}
}
