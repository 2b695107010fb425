package board

import (
	"syncboard/domain"
)

// directory holds registered users. Registration order is preserved because
// smart assignment breaks ties in favour of the first-registered user.
type directory struct {
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
	order   []string
}

func newDirectory() *directory {
	return &directory{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]*domain.User),
	}
}

func (d *directory) add(u domain.User) error {
	if _, ok := d.byEmail[u.Email]; ok {
		return domain.ErrUserExists
	}
	cpy := u
	d.byID[u.ID] = &cpy
	d.byEmail[u.Email] = &cpy
	d.order = append(d.order, u.ID)
	return nil
}

func (d *directory) byEmailAddr(email string) (domain.User, bool) {
	u, ok := d.byEmail[email]
	if !ok {
		return domain.User{}, false
	}
	return *u, true
}

func (d *directory) byUserID(id string) (domain.User, bool) {
	u, ok := d.byID[id]
	if !ok {
		return domain.User{}, false
	}
	return *u, true
}

// list returns all users in registration order.
func (d *directory) list() []domain.User {
	out := make([]domain.User, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.byID[id])
	}
	return out
}
