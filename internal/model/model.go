package model

import (
	"sort"
	"strings"
)

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Session is the credential/identity pair held by the client.
// User is only non-nil when Token is non-empty.
type Session struct {
	Token string `json:"token,omitempty"`
	User  *User  `json:"user,omitempty"`
}

type ListType string

const (
	ListTypePrivate ListType = "private"
	ListTypeShared  ListType = "shared"
)

func (t ListType) Valid() bool {
	return t == ListTypePrivate || t == ListTypeShared
}

type Member struct {
	User User `json:"user"`
}

type List struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	ListType ListType `json:"list_type"`
	Owner    User     `json:"owner"`
	Members  []Member `json:"members"`
}

// IsOwner reports whether userID owns the list.
func (l List) IsOwner(userID int64) bool { return l.Owner.ID == userID }

// HasMember reports whether userID is the owner or a listed member.
func (l List) HasMember(userID int64) bool {
	if l.IsOwner(userID) {
		return true
	}
	for _, m := range l.Members {
		if m.User.ID == userID {
			return true
		}
	}
	return false
}

type Category struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	ListID int64  `json:"list_id,omitempty"`
}

// CategoryNamed finds a category by name, ignoring case and surrounding space.
func CategoryNamed(cats []Category, name string) (Category, bool) {
	name = strings.TrimSpace(name)
	for _, c := range cats {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Category{}, false
}

type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Item struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Note       *string     `json:"note"`
	Category   CategoryRef `json:"category"`
	PriceMatch bool        `json:"price_match"`
	IsTicked   bool        `json:"is_ticked"`
	ListID     int64       `json:"list_id,omitempty"`
}

// Clone returns a deep copy (Note is a pointer).
func (it Item) Clone() Item {
	out := it
	if it.Note != nil {
		n := *it.Note
		out.Note = &n
	}
	return out
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Group is one category bucket of the derived grouping.
type Group struct {
	Category Category `json:"category"`
	Items    []Item   `json:"items"`
}

// Grouping is the items-by-category view. Orphans holds items whose category
// is not present in the categories collection; they are not rendered.
type Grouping struct {
	Groups  []Group `json:"groups"`
	Orphans []Item  `json:"orphans,omitempty"`
}

// Find returns the group for categoryID.
func (g Grouping) Find(categoryID int64) (Group, bool) {
	for _, grp := range g.Groups {
		if grp.Category.ID == categoryID {
			return grp, true
		}
	}
	return Group{}, false
}

// GroupItems builds the derived grouping from the two canonical collections.
// Categories are ordered by name, items by name within each group; ties fall
// back to id so the result is deterministic.
func GroupItems(categories []Category, items []Item) Grouping {
	cats := make([]Category, len(categories))
	copy(cats, categories)
	sort.SliceStable(cats, func(i, j int) bool {
		return lessByName(cats[i].Name, cats[j].Name, cats[i].ID, cats[j].ID)
	})

	idx := make(map[int64]int, len(cats))
	out := Grouping{Groups: make([]Group, 0, len(cats))}
	for _, c := range cats {
		if _, dup := idx[c.ID]; dup {
			continue
		}
		idx[c.ID] = len(out.Groups)
		out.Groups = append(out.Groups, Group{Category: c, Items: []Item{}})
	}

	for _, it := range items {
		gi, ok := idx[it.Category.ID]
		if !ok {
			out.Orphans = append(out.Orphans, it.Clone())
			continue
		}
		out.Groups[gi].Items = append(out.Groups[gi].Items, it.Clone())
	}
	for i := range out.Groups {
		g := out.Groups[i].Items
		sort.SliceStable(g, func(a, b int) bool {
			return lessByName(g[a].Name, g[b].Name, g[a].ID, g[b].ID)
		})
	}
	return out
}

func lessByName(a, b string, aID, bID int64) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	if a != b {
		return a < b
	}
	return aID < bID
}
