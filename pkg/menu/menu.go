package menu

// Menu is an ordered collection of items. Order is insertion order, which is
// not necessarily the order the server returns on a fresh list.
// Menu is not safe for concurrent use; owners are expected to guard it.
type Menu struct {
	// Items is the list of menu items
	Items []Item `json:"items"`
}

// NewMenu returns a menu holding a copy of the provided items.
func NewMenu(items []Item) *Menu {
	m := &Menu{}
	m.Reset(items)
	return m
}

// Len returns the number of items on the menu.
func (m *Menu) Len() int {
	return len(m.Items)
}

// Index returns the position of the item with the given identifier, or -1.
func (m *Menu) Index(id int64) int {
	for i := range m.Items {
		if m.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns the item with the given identifier.
func (m *Menu) Get(id int64) (Item, bool) {
	if i := m.Index(id); i >= 0 {
		return m.Items[i], true
	}
	return Item{}, false
}

// Reset replaces the entire collection.
func (m *Menu) Reset(items []Item) {
	m.Items = make([]Item, len(items))
	copy(m.Items, items)
}

// Append adds the item at the end of the collection.
func (m *Menu) Append(item Item) {
	m.Items = append(m.Items, item)
}

// Replace swaps the item matching item.ID in place.
// Returns false when no item carries that identifier.
func (m *Menu) Replace(item Item) bool {
	i := m.Index(item.ID)
	if i < 0 {
		return false
	}
	m.Items[i] = item
	return true
}

// Remove deletes the item with the given identifier, preserving order.
// Returns false when no item carries that identifier.
func (m *Menu) Remove(id int64) bool {
	i := m.Index(id)
	if i < 0 {
		return false
	}
	m.Items = append(m.Items[:i], m.Items[i+1:]...)
	return true
}

// Snapshot returns a copy of the items that callers may freely modify.
func (m *Menu) Snapshot() []Item {
	out := make([]Item, len(m.Items))
	copy(out, m.Items)
	return out
}
