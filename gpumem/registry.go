package gpumem

import (
	"slices"
)

// Kind identifies a resource registry.
type Kind uint8

// Resource kinds.
const (
	KindDataset Kind = iota
	KindImage
	KindTransferFunction1D
	KindTransferFunction2D
	KindBrick
	KindTarget
	KindProgram
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindDataset:
		return "dataset"
	case KindImage:
		return "image"
	case KindTransferFunction1D:
		return "tf1d"
	case KindTransferFunction2D:
		return "tf2d"
	case KindBrick:
		return "brick"
	case KindTarget:
		return "target"
	case KindProgram:
		return "program"
	default:
		return "unknown"
	}
}

// Ownership selects how a registry tracks its users.
type Ownership uint8

const (
	// OwnerSet records every requester. The same requester may appear
	// several times; each acquire must be matched by one release.
	OwnerSet Ownership = iota

	// AccessCount keeps a plain counter without requester identity.
	AccessCount
)

// entry is one registered resource.
type entry[K comparable, V comparable] struct {
	key    K
	value  V
	name   string
	size   Footprint
	seq    uint64
	owners []Requester
	count  int
}

// registry is a shared-resource table keyed by K with reverse lookup by
// the resource value V. It does no memory accounting and does not destroy
// values; the manager does both so that every kind shares one budget.
type registry[K comparable, V comparable] struct {
	kind    Kind
	policy  Ownership
	entries map[K]*entry[K, V]
	byValue map[V]K
	seq     uint64
}

func newRegistry[K comparable, V comparable](kind Kind, policy Ownership) *registry[K, V] {
	return &registry[K, V]{
		kind:    kind,
		policy:  policy,
		entries: make(map[K]*entry[K, V]),
		byValue: make(map[V]K),
	}
}

func (r *registry[K, V]) len() int { return len(r.entries) }

// get looks an entry up by key.
func (r *registry[K, V]) get(key K) (*entry[K, V], bool) {
	e, ok := r.entries[key]
	return e, ok
}

// lookup finds an entry by its resource value.
func (r *registry[K, V]) lookup(value V) (*entry[K, V], bool) {
	key, ok := r.byValue[value]
	if !ok {
		return nil, false
	}
	return r.get(key)
}

// insert registers a new resource with a single user. For OwnerSet
// registries that user is owner.
func (r *registry[K, V]) insert(key K, value V, name string, size Footprint, owner Requester) *entry[K, V] {
	r.seq++
	e := &entry[K, V]{key: key, value: value, name: name, size: size, seq: r.seq}
	r.entries[key] = e
	r.byValue[value] = key
	r.addUser(e, owner)
	return e
}

// addUser records one more acquire.
func (r *registry[K, V]) addUser(e *entry[K, V], owner Requester) {
	if r.policy == OwnerSet {
		e.owners = append(e.owners, owner)
		return
	}
	e.count++
}

// removeUser undoes one acquire. It reports false, leaving the entry
// untouched, when owner holds no reference or the count is already zero.
func (r *registry[K, V]) removeUser(e *entry[K, V], owner Requester) bool {
	if r.policy == OwnerSet {
		i := slices.Index(e.owners, owner)
		if i < 0 {
			return false
		}
		e.owners = slices.Delete(e.owners, i, i+1)
		return true
	}
	if e.count == 0 {
		return false
	}
	e.count--
	return true
}

// users returns the number of outstanding acquires of e.
func (r *registry[K, V]) users(e *entry[K, V]) int {
	if r.policy == OwnerSet {
		return len(e.owners)
	}
	return e.count
}

// isOwner reports whether owner holds a reference to e.
func (r *registry[K, V]) isOwner(e *entry[K, V], owner Requester) bool {
	return slices.Contains(e.owners, owner)
}

// otherOwners returns the distinct owners of e except skip, in the order
// they first acquired.
func (r *registry[K, V]) otherOwners(e *entry[K, V], skip Requester) []Requester {
	var out []Requester
	for _, o := range e.owners {
		if o == skip || slices.Contains(out, o) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// replace swaps the resource value of e.
func (r *registry[K, V]) replace(e *entry[K, V], value V, size Footprint) {
	delete(r.byValue, e.value)
	e.value = value
	e.size = size
	r.byValue[value] = e.key
}

// remove unregisters the entry. The caller destroys the value.
func (r *registry[K, V]) remove(e *entry[K, V]) {
	delete(r.entries, e.key)
	delete(r.byValue, e.value)
}

// all returns every entry in creation order.
func (r *registry[K, V]) all() []*entry[K, V] {
	out := make([]*entry[K, V], 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *entry[K, V]) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	return out
}
