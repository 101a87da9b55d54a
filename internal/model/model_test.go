package model

import (
	"reflect"
	"testing"
)

func TestGroupItems_OrdersCategoriesAndItemsByName(t *testing.T) {
	t.Parallel()

	cats := []Category{
		{ID: 2, Name: "produce"},
		{ID: 1, Name: "Dairy"},
		{ID: 3, Name: "Bakery"},
	}
	items := []Item{
		{ID: 10, Name: "Yogurt", Category: CategoryRef{ID: 1}},
		{ID: 11, Name: "milk", Category: CategoryRef{ID: 1}},
		{ID: 12, Name: "Apples", Category: CategoryRef{ID: 2}},
	}

	g := GroupItems(cats, items)
	var gotCats []string
	for _, grp := range g.Groups {
		gotCats = append(gotCats, grp.Category.Name)
	}
	if want := []string{"Bakery", "Dairy", "produce"}; !reflect.DeepEqual(gotCats, want) {
		t.Fatalf("categories order: got %v want %v", gotCats, want)
	}
	dairy, ok := g.Find(1)
	if !ok {
		t.Fatalf("expected dairy group")
	}
	if dairy.Items[0].Name != "milk" || dairy.Items[1].Name != "Yogurt" {
		t.Fatalf("items order: got %+v", dairy.Items)
	}
	bakery, _ := g.Find(3)
	if bakery.Items == nil || len(bakery.Items) != 0 {
		t.Fatalf("expected empty (non-nil) bakery group, got %#v", bakery.Items)
	}
}

func TestGroupItems_ExcludesOrphans(t *testing.T) {
	t.Parallel()

	cats := []Category{{ID: 1, Name: "Dairy"}}
	items := []Item{
		{ID: 1, Name: "Milk", Category: CategoryRef{ID: 1}},
		{ID: 2, Name: "Ghost", Category: CategoryRef{ID: 99}},
	}
	g := GroupItems(cats, items)
	if len(g.Groups) != 1 || len(g.Groups[0].Items) != 1 {
		t.Fatalf("unexpected groups: %+v", g.Groups)
	}
	if len(g.Orphans) != 1 || g.Orphans[0].ID != 2 {
		t.Fatalf("expected orphan item 2, got %+v", g.Orphans)
	}
}

func TestGroupItems_Deterministic(t *testing.T) {
	t.Parallel()

	cats := []Category{{ID: 5, Name: "A"}, {ID: 4, Name: "a"}, {ID: 6, Name: "A"}}
	items := []Item{
		{ID: 3, Name: "x", Category: CategoryRef{ID: 5}},
		{ID: 1, Name: "x", Category: CategoryRef{ID: 5}},
		{ID: 2, Name: "X", Category: CategoryRef{ID: 6}},
	}
	a := GroupItems(cats, items)
	b := GroupItems(cats, items)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("grouping not deterministic:\n%+v\n%+v", a, b)
	}
	g5, _ := a.Find(5)
	if g5.Items[0].ID != 1 || g5.Items[1].ID != 3 {
		t.Fatalf("expected id tie-break, got %+v", g5.Items)
	}
}

func TestGroupItems_DoesNotAliasInputs(t *testing.T) {
	t.Parallel()

	note := "2%"
	items := []Item{{ID: 1, Name: "Milk", Note: &note, Category: CategoryRef{ID: 1}}}
	g := GroupItems([]Category{{ID: 1, Name: "Dairy"}}, items)
	*g.Groups[0].Items[0].Note = "skim"
	if *items[0].Note != "2%" {
		t.Fatalf("grouping aliased the canonical note")
	}
}

func TestList_HasMember(t *testing.T) {
	t.Parallel()

	l := List{Owner: User{ID: 1}, Members: []Member{{User: User{ID: 2}}}}
	if !l.HasMember(1) || !l.HasMember(2) || l.HasMember(3) {
		t.Fatalf("unexpected membership results")
	}
}

func TestCategoryNamed(t *testing.T) {
	cats := []Category{{ID: 1, Name: "Dairy"}, {ID: 2, Name: "Produce"}}
	if c, ok := CategoryNamed(cats, "  dairy "); !ok || c.ID != 1 {
		t.Fatalf("got %+v ok=%v", c, ok)
	}
	if _, ok := CategoryNamed(cats, "Bakery"); ok {
		t.Fatalf("expected no match")
	}
}
