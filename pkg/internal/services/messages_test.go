package services_test

import (
	"testing"
	"time"

	"github.com/wanderparty/tripchat/pkg/internal/models"
)

const trip = "trip-42"

func TestAppendAssignsAuthoritativeIdentity(t *testing.T) {
	registry, mock := newTestRegistry(t)

	stored, err := registry.Messages.Append(trip, alice, models.Message{Content: "at the gate"})
	if err != nil {
		t.Fatalf("append returned error: %v", err)
	}
	if len(stored.Uuid) == 0 {
		t.Fatal("expected a generated message id")
	}
	if !stored.Timestamp.Equal(mock.Now()) {
		t.Fatalf("expected server timestamp %v, got %v", mock.Now(), stored.Timestamp)
	}
	if stored.Type != models.MessageTypeText {
		t.Fatalf("expected default type text, got %q", stored.Type)
	}
	if stored.Edited || stored.Deleted || stored.Pinned {
		t.Fatal("overlay flags should start unset")
	}
	if len(stored.Reactions.Data()) != 0 {
		t.Fatal("reactions should start empty")
	}
}

func TestAppendValidatesRequiredFields(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Messages.Append(trip, alice, models.Message{Content: "   "})
	coded, ok := models.AsCoded(err)
	if !ok || coded.Code != models.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = registry.Messages.Append(trip, alice, models.Message{Content: "hi", Type: "carrier-pigeon"})
	if coded, ok = models.AsCoded(err); !ok || coded.Code != models.CodeValidation {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}

	// An attachment alone is enough.
	size := int64(1024)
	_, err = registry.Messages.Append(trip, alice, models.Message{
		Attachments: []models.MessageAttachment{{ID: "att-1", Type: "image", Url: "https://cdn/x.png", Name: "x.png", Size: &size}},
	})
	if err != nil {
		t.Fatalf("attachment-only message should be accepted: %v", err)
	}
}

func TestEditKeepsIdentityAndStampsEditedAt(t *testing.T) {
	registry, mock := newTestRegistry(t)

	stored, _ := registry.Messages.Append(trip, alice, models.Message{Content: "at the gate"})
	mock.Add(90 * time.Second)

	edited, err := registry.Messages.Edit(trip, stored.Uuid, alice.UserID, "at gate B")
	if err != nil {
		t.Fatalf("edit returned error: %v", err)
	}
	if edited.Uuid != stored.Uuid || edited.UserID != stored.UserID {
		t.Fatal("edit must not change id or author")
	}
	if !edited.Timestamp.Equal(stored.Timestamp) {
		t.Fatal("edit must not change the original timestamp")
	}
	if !edited.Edited || edited.EditedAt == nil || !edited.EditedAt.Equal(mock.Now()) {
		t.Fatalf("expected edited flag and edited_at %v, got %+v", mock.Now(), edited.EditedAt)
	}
	if edited.Content != "at gate B" {
		t.Fatalf("unexpected content %q", edited.Content)
	}
}

func TestEditAuthorization(t *testing.T) {
	registry, _ := newTestRegistry(t)

	stored, _ := registry.Messages.Append(trip, alice, models.Message{Content: "mine"})

	_, err := registry.Messages.Edit(trip, stored.Uuid, bob.UserID, "hijacked")
	if coded, ok := models.AsCoded(err); !ok || coded.Code != models.CodeForbidden {
		t.Fatalf("expected forbidden for non-author edit, got %v", err)
	}

	_, err = registry.Messages.Edit(trip, "m-unknown", alice.UserID, "nope")
	if coded, ok := models.AsCoded(err); !ok || coded.Code != models.CodeNotFound {
		t.Fatalf("expected not_found for unknown id, got %v", err)
	}
}

func TestSoftDeleteHiddenByDefaultYetSearchable(t *testing.T) {
	registry, _ := newTestRegistry(t)

	stored, _ := registry.Messages.Append(trip, alice, models.Message{Content: "meet at splash mountain"})
	if _, err := registry.Messages.SoftDelete(trip, stored.Uuid, alice); err != nil {
		t.Fatalf("soft delete returned error: %v", err)
	}

	for message, err := range registry.Messages.Filter(trip, models.MessageFilter{}) {
		if err != nil {
			t.Fatalf("filter returned error: %v", err)
		}
		if message.Uuid == stored.Uuid {
			t.Fatal("deleted message leaked into default filter results")
		}
	}

	results, err := registry.Messages.Search(trip, models.SearchQuery{Keyword: "splash"})
	if err != nil {
		t.Fatalf("search returned error: %v", err)
	}
	if len(results) != 0 {
		t.Fatal("default search should hide deleted messages")
	}

	results, err = registry.Messages.Search(trip, models.SearchQuery{Keyword: "splash", IncludeDeleted: true})
	if err != nil {
		t.Fatalf("search returned error: %v", err)
	}
	if len(results) != 1 || results[0].Message.Uuid != stored.Uuid {
		t.Fatal("include-deleted search should still find the message")
	}

	// Still addressable by id for thread integrity.
	if _, err := registry.Messages.Get(trip, stored.Uuid); err != nil {
		t.Fatalf("deleted message should stay addressable: %v", err)
	}
}

func TestSoftDeleteAuthorization(t *testing.T) {
	registry, _ := newTestRegistry(t)

	stored, _ := registry.Messages.Append(trip, alice, models.Message{Content: "oops"})

	_, err := registry.Messages.SoftDelete(trip, stored.Uuid, bob)
	if coded, ok := models.AsCoded(err); !ok || coded.Code != models.CodeForbidden {
		t.Fatalf("expected forbidden for non-author delete, got %v", err)
	}

	// A room admin may delete someone else's message.
	if _, err := registry.Messages.SoftDelete(trip, stored.Uuid, carol); err != nil {
		t.Fatalf("admin delete returned error: %v", err)
	}
}

func TestReactIdempotence(t *testing.T) {
	registry, _ := newTestRegistry(t)

	stored, _ := registry.Messages.Append(trip, alice, models.Message{Content: "boarding now"})

	first, changed, err := registry.Messages.React(trip, stored.Uuid, bob.UserID, "🎉", models.ReactionAdd)
	if err != nil || !changed {
		t.Fatalf("first add should change the set: changed=%v err=%v", changed, err)
	}

	again, changed, err := registry.Messages.React(trip, stored.Uuid, bob.UserID, "🎉", models.ReactionAdd)
	if err != nil {
		t.Fatalf("repeated add returned error: %v", err)
	}
	if changed {
		t.Fatal("repeated add must be a no-op")
	}
	if len(again.Reactions.Data()["🎉"]) != len(first.Reactions.Data()["🎉"]) {
		t.Fatal("repeated add changed the reaction set")
	}

	_, changed, err = registry.Messages.React(trip, stored.Uuid, bob.UserID, "🎉", models.ReactionRemove)
	if err != nil || !changed {
		t.Fatalf("remove should change the set: changed=%v err=%v", changed, err)
	}

	cleared, _ := registry.Messages.Get(trip, stored.Uuid)
	if len(cleared.Reactions.Data()) != 0 {
		t.Fatal("remove should return the set to its pre-add state")
	}

	_, changed, err = registry.Messages.React(trip, stored.Uuid, bob.UserID, "🎉", models.ReactionRemove)
	if err != nil {
		t.Fatalf("removing a missing reaction returned error: %v", err)
	}
	if changed {
		t.Fatal("removing a missing reaction must be a no-op")
	}
}

func TestPinIsAdminGated(t *testing.T) {
	registry, _ := newTestRegistry(t)

	stored, _ := registry.Messages.Append(trip, alice, models.Message{Content: "dinner at 7"})

	_, err := registry.Messages.Pin(trip, stored.Uuid, true, alice)
	if coded, ok := models.AsCoded(err); !ok || coded.Code != models.CodeForbidden {
		t.Fatalf("expected forbidden for member pin, got %v", err)
	}

	pinned, err := registry.Messages.Pin(trip, stored.Uuid, true, carol)
	if err != nil || !pinned.Pinned {
		t.Fatalf("admin pin failed: pinned=%v err=%v", pinned.Pinned, err)
	}
}

func TestThreadParentMustExist(t *testing.T) {
	registry, _ := newTestRegistry(t)

	missing := "m-missing"
	_, err := registry.Messages.Append(trip, alice, models.Message{Content: "reply", ParentID: &missing})
	if coded, ok := models.AsCoded(err); !ok || coded.Code != models.CodeNotFound {
		t.Fatalf("expected not_found for dangling parent, got %v", err)
	}

	root, _ := registry.Messages.Append(trip, alice, models.Message{Content: "thread root"})
	if _, err := registry.Messages.Append(trip, bob, models.Message{Content: "reply", ParentID: &root.Uuid}); err != nil {
		t.Fatalf("reply to an existing parent returned error: %v", err)
	}
}
