package redact

import (
	"testing"

	"wishlane/api/internal/store"
)

func TestItemStripsGiftIntentKeys(t *testing.T) {
	item := store.ListItem{ID: "i1", CreatedByID: "alice"}
	gettings := []store.Getting{{GiverID: "bob", GetterID: "alice", ItemID: "i1", Status: store.GettingBuying}}

	hidden := Item(item, ItemOpts{CanSeeGotten: false, Gettings: gettings})
	if _, ok := hidden["getting"]; ok {
		t.Fatal("getting key present despite redaction")
	}
	if _, ok := hidden["goInOn"]; ok {
		t.Fatal("goInOn key present despite redaction")
	}

	shown := Item(item, ItemOpts{CanSeeGotten: true, Gettings: gettings})
	got, ok := shown["getting"].([]map[string]any)
	if !ok || len(got) != 1 {
		t.Fatalf("expected one getting row, got %v", shown["getting"])
	}
	if got[0]["status"] != store.GettingBuying {
		t.Fatalf("getting status = %v", got[0]["status"])
	}
	if _, ok := shown["goInOn"]; !ok {
		t.Fatal("goInOn key missing when visible")
	}
}

func TestUserEmailVisibility(t *testing.T) {
	mom := "mom"
	u := store.User{ID: "kid", DisplayName: "Kid", Email: "kid@example.com", ParentID: &mom, IsActive: true}

	if _, ok := User("stranger", u)["email"]; ok {
		t.Fatal("email leaked to stranger")
	}
	if _, ok := User("kid", u)["email"]; !ok {
		t.Fatal("email hidden from self")
	}
	if _, ok := User("mom", u)["email"]; !ok {
		t.Fatal("email hidden from parent")
	}
	for _, viewer := range []string{"kid", "mom", "stranger"} {
		if _, ok := User(viewer, u)["passwordHash"]; ok {
			t.Fatal("password hash serialized")
		}
	}
}

func TestPublicListFiltersItems(t *testing.T) {
	creator := "bob"
	items := []store.ListItem{
		{ID: "pub", IsPublic: true},
		{ID: "priv"},
		{ID: "del", IsPublic: true, Deleted: true},
		{ID: "custom", IsPublic: true, IsCustom: true, CustomItemCreator: &creator},
	}
	out := PublicList(store.List{ID: "l1", Name: "Wishes"}, items, nil)
	got := out["items"].([]map[string]any)
	if len(got) != 1 || got[0]["id"] != "pub" {
		t.Fatalf("public filtering wrong: %v", got)
	}
}

func TestPublicListCreatorOnlyWhenPublic(t *testing.T) {
	items := []store.ListItem{
		{ID: "a", CreatedByID: "open", IsPublic: true},
		{ID: "b", CreatedByID: "hidden", IsPublic: true},
	}
	out := PublicList(store.List{ID: "l1"}, items, map[string]bool{"open": true})
	got := out["items"].([]map[string]any)
	if len(got) != 2 {
		t.Fatalf("items = %v", got)
	}
	for _, m := range got {
		creator, ok := m["createdById"]
		switch m["id"] {
		case "a":
			if !ok || creator != "open" {
				t.Fatalf("public creator missing: %v", m)
			}
		case "b":
			if ok {
				t.Fatalf("anonymous creator leaked: %v", m)
			}
		}
	}
}

func TestItemOmitsNilOptionals(t *testing.T) {
	out := Item(store.ListItem{ID: "i1"}, ItemOpts{})
	for _, key := range []string{"price", "minPrice", "maxPrice", "customItemCreator", "deleteOnDate"} {
		if _, ok := out[key]; ok {
			t.Fatalf("nil optional %s serialized", key)
		}
	}
	if out["lists"] == nil {
		t.Fatal("lists should serialize as empty array, not null")
	}
}
