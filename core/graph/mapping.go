package graph

// IdentityMapping relates external user/movie ids to node indices. A
// checkpoint carries the mapping it was trained with; the inference
// engine rebuilds the graph from the same tables and requires the two
// mappings to match exactly, otherwise node indices misalign and every
// prediction is garbage.
type IdentityMapping struct {
	Users map[int64]int32
	Items map[int64]int32

	// UserOrder and ItemOrder list ids in node-index order. ItemOrder is
	// also the catalog enumeration order used for ranking tie-breaks.
	UserOrder []int64
	ItemOrder []int64
}

// UserNode resolves a user id to its node index.
func (m *IdentityMapping) UserNode(id int64) (int32, bool) {
	n, ok := m.Users[id]
	return n, ok
}

// ItemNode resolves a movie id to its node index.
func (m *IdentityMapping) ItemNode(id int64) (int32, bool) {
	n, ok := m.Items[id]
	return n, ok
}

// Equal reports whether two mappings assign identical node indices to
// identical id sets, in identical order.
func (m *IdentityMapping) Equal(o *IdentityMapping) bool {
	if m == nil || o == nil {
		return m == o
	}
	if len(m.Users) != len(o.Users) || len(m.Items) != len(o.Items) {
		return false
	}
	if len(m.UserOrder) != len(o.UserOrder) || len(m.ItemOrder) != len(o.ItemOrder) {
		return false
	}
	for id, n := range m.Users {
		if on, ok := o.Users[id]; !ok || on != n {
			return false
		}
	}
	for id, n := range m.Items {
		if on, ok := o.Items[id]; !ok || on != n {
			return false
		}
	}
	for i, id := range m.UserOrder {
		if o.UserOrder[i] != id {
			return false
		}
	}
	for i, id := range m.ItemOrder {
		if o.ItemOrder[i] != id {
			return false
		}
	}
	return true
}
