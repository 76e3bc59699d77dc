package memoriae

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultGroupWindow is the maximum gap between consecutive same-kind entries
// that still merges them into one display group.
const DefaultGroupWindow = 60 * time.Second

// DisplayGroup is one rendered line of a seed's history view. A group covers
// one or more ledger entries of the same kind that happened close together.
type DisplayGroup struct {
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
	Automated bool      `json:"automated"`
}

// timelineEntry is the pre-grouping form of a single ledger event.
type timelineEntry struct {
	id        string
	key       string
	title     string
	content   string
	tagName   string
	createdAt time.Time
	automated bool
}

// BuildTimeline merges a seed's transactions with its sprouts into a
// display-ready sequence, newest first, grouped with the default window.
func BuildTimeline(txs []Transaction, sprouts []Sprout) []DisplayGroup {
	return BuildTimelineWindow(txs, sprouts, DefaultGroupWindow)
}

// BuildTimelineWindow is BuildTimeline with an explicit grouping window.
// It never fails: malformed payloads fall back to placeholder text.
func BuildTimelineWindow(txs []Transaction, sprouts []Sprout, window time.Duration) []DisplayGroup {
	// Sprouts shown as their own entries must not be double-reported through
	// the add_sprout markers on the seed ledger.
	shown := make(map[string]bool, len(sprouts))
	for _, sp := range sprouts {
		shown[sp.ID] = true
	}

	entries := make([]timelineEntry, 0, len(txs)+len(sprouts))
	for _, tx := range txs {
		if tx.Type == TypeAddSprout {
			var d AddSproutData
			if decodeData(tx, &d) && shown[d.SproutID] {
				continue
			}
		}
		entries = append(entries, transactionEntry(tx))
	}
	for _, sp := range sprouts {
		entries = append(entries, sproutEntry(sp))
	}

	// Newest first. Equal timestamps fall back to id, the reverse of the
	// reducer's replay order, so the view is deterministic too.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].createdAt.Equal(entries[j].createdAt) {
			return entries[i].id > entries[j].id
		}
		return entries[i].createdAt.After(entries[j].createdAt)
	})

	groups := []DisplayGroup{}
	var run []timelineEntry
	for _, e := range entries {
		if len(run) > 0 {
			prev := run[len(run)-1]
			if e.key != prev.key || prev.createdAt.Sub(e.createdAt) > window {
				groups = append(groups, summarize(run))
				run = run[:0]
			}
		}
		run = append(run, e)
	}
	if len(run) > 0 {
		groups = append(groups, summarize(run))
	}
	return groups
}

// transactionEntry renders one seed transaction for display. Missing payload
// fields degrade to placeholder text, never to an error.
func transactionEntry(tx Transaction) timelineEntry {
	e := timelineEntry{
		id:        tx.ID,
		key:       string(tx.Type),
		createdAt: tx.CreatedAt,
		automated: tx.Automated(),
	}

	switch tx.Type {
	case TypeCreateSeed:
		var d CreateSeedData
		decodeData(tx, &d)
		e.title = "Seed Planted"
		e.content = d.Content

	case TypeEditContent:
		var d EditContentData
		decodeData(tx, &d)
		e.title = "Content Edited"
		e.content = d.Content

	case TypeAddTag:
		var d AddTagData
		decodeData(tx, &d)
		e.title = "Tag Added"
		e.tagName = d.TagName
		e.content = tagLine("Tag added", d.TagName)

	case TypeRemoveTag:
		var d RemoveTagData
		decodeData(tx, &d)
		e.title = "Tag Removed"
		e.tagName = d.TagName
		e.content = tagLine("Tag removed", d.TagName)

	case TypeSetCategory:
		var d SetCategoryData
		decodeData(tx, &d)
		e.title = "Category Set"
		e.content = d.CategoryName
		if d.CategoryPath != "" {
			e.content = d.CategoryPath
		}
		if e.content == "" {
			e.content = "Category set"
		}

	case TypeRemoveCategory:
		e.title = "Category Removed"
		e.content = "Category removed"

	case TypeAddSprout:
		e.title = "Sprout Attached"
		e.content = "Sprout attached"

	default:
		e.title = string(tx.Type)
		e.content = string(tx.Type)
	}
	return e
}

// tagLine formats a tag event, falling back to the placeholder when the
// ledger entry predates the tag_name field.
func tagLine(placeholder, name string) string {
	if name == "" {
		return placeholder
	}
	return "Tag: " + name
}

var sproutTitles = map[SproutKind]string{
	SproutFollowup:     "Follow-up",
	SproutMusing:       "Musing",
	SproutWikipedia:    "Wikipedia Reference",
	SproutExtraContext: "Extra Context",
	SproutFactCheck:    "Fact Check",
}

func sproutEntry(sp Sprout) timelineEntry {
	title, ok := sproutTitles[sp.Kind]
	if !ok {
		title = "Sprout"
	}
	content := sp.Title
	if content == "" {
		content = title
	}
	return timelineEntry{
		id:        sp.ID,
		key:       "sprout:" + string(sp.Kind),
		title:     title,
		content:   content,
		createdAt: sp.CreatedAt,
	}
}

// maxDisplayedTagNames caps how many tag names a merged tag group lists.
const maxDisplayedTagNames = 10

// summarize collapses a run of same-kind entries into one display group.
// The run is in descending time order, so the first member is the newest.
func summarize(run []timelineEntry) DisplayGroup {
	g := DisplayGroup{
		Kind:      run[0].key,
		Timestamp: run[0].createdAt,
		Count:     len(run),
	}
	for _, e := range run {
		if e.automated {
			g.Automated = true
		}
	}

	if len(run) == 1 {
		g.Title = run[0].title
		g.Content = run[0].content
		return g
	}

	switch run[0].key {
	case string(TypeAddTag):
		g.Title = "Tags Added"
		g.Content = tagListSummary(run, "Tag added")
	case string(TypeRemoveTag):
		g.Title = "Tags Removed"
		g.Content = tagListSummary(run, "Tag removed")
	default:
		g.Title = run[0].title
		g.Content = contentSummary(run)
		return g
	}

	if g.Automated {
		g.Title += " (automated)"
	}
	return g
}

// tagListSummary lists the deduplicated tag names in the order encountered,
// capped at maxDisplayedTagNames with a "+N more" suffix. Runs whose entries
// all lack a name fall back to a count ("Nx Tag removed").
func tagListSummary(run []timelineEntry, placeholder string) string {
	seen := make(map[string]bool)
	var names []string
	for _, e := range run {
		if e.tagName == "" || seen[e.tagName] {
			continue
		}
		seen[e.tagName] = true
		names = append(names, e.tagName)
	}
	if len(names) == 0 {
		return fmt.Sprintf("%dx %s", len(run), placeholder)
	}

	if len(names) > maxDisplayedTagNames {
		extra := len(names) - maxDisplayedTagNames
		names = names[:maxDisplayedTagNames]
		return strings.Join(names, ", ") + fmt.Sprintf(" +%d more", extra)
	}
	return strings.Join(names, ", ")
}

// contentSummary collapses a run of non-tag entries: identical contents
// become "Nx <content>", otherwise up to three distinct contents are listed.
func contentSummary(run []timelineEntry) string {
	seen := make(map[string]bool)
	var distinct []string
	for _, e := range run {
		if seen[e.content] {
			continue
		}
		seen[e.content] = true
		distinct = append(distinct, e.content)
	}

	if len(distinct) == 1 {
		return fmt.Sprintf("%dx %s", len(run), distinct[0])
	}
	if len(distinct) > 3 {
		extra := len(distinct) - 3
		distinct = distinct[:3]
		return strings.Join(distinct, "; ") + fmt.Sprintf(" +%d more", extra)
	}
	return strings.Join(distinct, "; ")
}
