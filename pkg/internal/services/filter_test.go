package services_test

import (
	"testing"
	"time"

	"github.com/wanderparty/tripchat/pkg/internal/models"
)

func TestFilterNarrowsAndRestarts(t *testing.T) {
	registry, mock := newTestRegistry(t)

	registry.Messages.Append(trip, alice, models.Message{Content: "leaving the hotel"})
	mock.Add(time.Minute)
	registry.Messages.Append(trip, bob, models.Message{Content: "wait for me"})
	mock.Add(time.Minute)
	registry.Messages.Append(trip, alice, models.Message{Content: "ok, lobby", Type: models.MessageTypeSystem})
	registry.Messages.Append("trip-other", alice, models.Message{Content: "different party"})

	seq := registry.Messages.Filter(trip, models.MessageFilter{UserID: alice.UserID})

	countRun := func() int {
		var n int
		for _, err := range seq {
			if err != nil {
				t.Fatalf("filter returned error: %v", err)
			}
			n++
		}
		return n
	}

	if got := countRun(); got != 2 {
		t.Fatalf("expected 2 messages by alice, got %d", got)
	}
	// The sequence is restartable: a second range yields the same run.
	if got := countRun(); got != 2 {
		t.Fatalf("expected second run to yield 2 messages, got %d", got)
	}

	var kinds []string
	for message, err := range registry.Messages.Filter(trip, models.MessageFilter{Types: []models.MessageType{models.MessageTypeSystem}}) {
		if err != nil {
			t.Fatalf("filter returned error: %v", err)
		}
		kinds = append(kinds, message.Type)
	}
	if len(kinds) != 1 || kinds[0] != models.MessageTypeSystem {
		t.Fatalf("expected a single system message, got %v", kinds)
	}
}

func TestFilterOrderIsRoomLocal(t *testing.T) {
	registry, mock := newTestRegistry(t)

	first, _ := registry.Messages.Append(trip, alice, models.Message{Content: "one"})
	mock.Add(time.Second)
	second, _ := registry.Messages.Append(trip, bob, models.Message{Content: "two"})

	var order []string
	for message, err := range registry.Messages.Filter(trip, models.MessageFilter{}) {
		if err != nil {
			t.Fatalf("filter returned error: %v", err)
		}
		order = append(order, message.Uuid)
	}
	if len(order) != 2 || order[0] != first.Uuid || order[1] != second.Uuid {
		t.Fatalf("expected display order [%s %s], got %v", first.Uuid, second.Uuid, order)
	}
}

func TestFilterThreadAndOverlayPredicates(t *testing.T) {
	registry, _ := newTestRegistry(t)

	root, _ := registry.Messages.Append(trip, alice, models.Message{Content: "thread root"})
	registry.Messages.Append(trip, bob, models.Message{Content: "in thread", ParentID: &root.Uuid, ThreadID: &root.Uuid})
	registry.Messages.Append(trip, bob, models.Message{Content: "not in thread"})

	var thread []string
	for message, err := range registry.Messages.Filter(trip, models.MessageFilter{ThreadID: root.Uuid}) {
		if err != nil {
			t.Fatalf("filter returned error: %v", err)
		}
		thread = append(thread, message.Content)
	}
	if len(thread) != 2 {
		t.Fatalf("expected root and reply in the thread view, got %v", thread)
	}

	withAttachment, _ := registry.Messages.Append(trip, alice, models.Message{
		Attachments: []models.MessageAttachment{{ID: "att-1", Type: "image", Url: "https://cdn/a.png", Name: "a.png"}},
	})
	var images []string
	for message, err := range registry.Messages.Filter(trip, models.MessageFilter{AttachmentType: "image"}) {
		if err != nil {
			t.Fatalf("filter returned error: %v", err)
		}
		images = append(images, message.Uuid)
	}
	if len(images) != 1 || images[0] != withAttachment.Uuid {
		t.Fatalf("expected only the attachment message, got %v", images)
	}

	registry.Messages.React(trip, root.Uuid, bob.UserID, "👍", models.ReactionAdd)
	var reacted []string
	for message, err := range registry.Messages.Filter(trip, models.MessageFilter{HasReaction: true}) {
		if err != nil {
			t.Fatalf("filter returned error: %v", err)
		}
		reacted = append(reacted, message.Uuid)
	}
	if len(reacted) != 1 || reacted[0] != root.Uuid {
		t.Fatalf("expected only the reacted message, got %v", reacted)
	}
}

func TestSearchRanksAndReturnsContext(t *testing.T) {
	registry, mock := newTestRegistry(t)

	registry.Messages.Append(trip, alice, models.Message{Content: "before context"})
	mock.Add(time.Second)
	registry.Messages.Append(trip, bob, models.Message{Content: "castle castle castle"})
	mock.Add(time.Second)
	registry.Messages.Append(trip, alice, models.Message{Content: "meet by the castle"})
	mock.Add(time.Second)
	registry.Messages.Append(trip, bob, models.Message{Content: "after context"})

	results, err := registry.Messages.Search(trip, models.SearchQuery{Keyword: "castle", ContextSize: 1})
	if err != nil {
		t.Fatalf("search returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Message.Content != "castle castle castle" {
		t.Fatalf("expected the triple match ranked first, got %q", results[0].Message.Content)
	}
	if results[0].Score <= results[1].Score {
		t.Fatal("expected strictly higher score for more occurrences")
	}
	if len(results[0].MatchedFields) != 1 || results[0].MatchedFields[0] != "content" {
		t.Fatalf("unexpected matched fields %v", results[0].MatchedFields)
	}
	if len(results[0].Before) != 1 || results[0].Before[0].Content != "before context" {
		t.Fatalf("unexpected before context %v", results[0].Before)
	}
	if len(results[0].After) != 1 || results[0].After[0].Content != "meet by the castle" {
		t.Fatalf("unexpected after context %v", results[0].After)
	}

	_, err = registry.Messages.Search(trip, models.SearchQuery{Keyword: "  "})
	if coded, ok := models.AsCoded(err); !ok || coded.Code != models.CodeValidation {
		t.Fatalf("expected validation error for empty keyword, got %v", err)
	}
}
