// Package comments rebuilds threaded discussions from the flat, creation
// ordered comment rows of a listing.
package comments

import (
	"github.com/google/uuid"

	"kavmarket/internal/models"
	"kavmarket/internal/present"
)

// ParentUser identifies the author a reply responds to.
type ParentUser struct {
	ID        uuid.UUID `json:"id"`
	FirstName *string   `json:"firstName"`
	LastName  *string   `json:"lastName"`
}

// Node is one comment with its replies in creation order.
type Node struct {
	ID         uuid.UUID         `json:"id"`
	ListingID  uuid.UUID         `json:"listingId"`
	UserID     uuid.UUID         `json:"userId"`
	ParentID   *uuid.UUID        `json:"parentId"`
	Text       string            `json:"text"`
	CreatedAt  string            `json:"createdAt"`
	User       *present.UserView `json:"user"`
	ParentUser *ParentUser       `json:"parentUser"`
	Replies    []*Node           `json:"replies"`
}

// Build returns the root comments of flat, which must be ordered by
// creation time ascending. A comment whose parent is missing, or does not
// precede it, is treated as a root. Build runs in linear time and does not
// recurse, so thread depth is unbounded.
func Build(flat []models.Comment) []*Node {
	nodes := make([]*Node, len(flat))
	index := make(map[uuid.UUID]int, len(flat))

	for i := range flat {
		c := &flat[i]
		nodes[i] = &Node{
			ID:        c.ID,
			ListingID: c.ListingID,
			UserID:    c.UserID,
			ParentID:  c.ParentID,
			Text:      c.Text,
			CreatedAt: c.CreatedAt.UTC().Format(present.TimeLayout),
			User:      present.User(c.User),
			Replies:   []*Node{},
		}
		if _, dup := index[c.ID]; !dup {
			index[c.ID] = i
		}
	}

	roots := []*Node{}
	for i, n := range nodes {
		if n.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		// Parents must come earlier in the list; this also rules out cycles.
		j, ok := index[*n.ParentID]
		if !ok || j >= i {
			roots = append(roots, n)
			continue
		}
		parent := nodes[j]
		parent.Replies = append(parent.Replies, n)
		n.ParentUser = parentUser(flat[j].User, flat[j].UserID)
	}
	return roots
}

// Count returns the number of comments in the given trees.
func Count(roots []*Node) int {
	n := 0
	stack := append([]*Node(nil), roots...)
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n++
		stack = append(stack, top.Replies...)
	}
	return n
}

func parentUser(u *models.User, id uuid.UUID) *ParentUser {
	if u == nil {
		return &ParentUser{ID: id}
	}
	pu := &ParentUser{ID: u.ID}
	if u.FirstName != nil {
		s := *u.FirstName
		pu.FirstName = &s
	}
	if u.LastName != nil {
		s := *u.LastName
		pu.LastName = &s
	}
	return pu
}
