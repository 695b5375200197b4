// Package cache implements the cache object store, hash index, and shell
// from spec §4.D/§4.E: capacity accounting and the get/find/insert/evict/
// remove orchestration shared by every eviction policy.
package cache

// Object is one resident object's intrusive metadata (spec §4.D). Prev/Next
// form a doubly-linked queue whose head/tail arrangement is owned by
// whichever policy is attached to the shell; the hash index below is a
// plain Go map rather than a second intrusive chain, since Go's map already
// gives the O(1) expected lookup/insert/remove the spec asks for.
type Object struct {
	ObjID           uint64
	ObjSize         int64
	Freq            int64 // access count, policy-owned
	LastAccessVtime int64
	AdditionVtime   int64 // virtual time at insertion

	Prev, Next *Object

	// PolicyState is a single slot for auxiliary per-object state a policy
	// needs beyond the fields above (e.g. the frequency-node policy's
	// bucket membership, or the scaffolded policy's delta window). It is
	// opaque to the shell.
	PolicyState interface{}
}

// Index is the obj_id -> Object hash index (spec §4.D).
type Index struct {
	objects map[uint64]*Object
}

// NewIndex builds an empty hash index.
func NewIndex() *Index {
	return &Index{objects: make(map[uint64]*Object)}
}

// FindByID looks up a resident object.
func (idx *Index) FindByID(objID uint64) (*Object, bool) {
	obj, ok := idx.objects[objID]
	return obj, ok
}

// Insert links obj into the hash index. The caller is responsible for the
// intrusive queue linkage and occupancy accounting.
func (idx *Index) Insert(obj *Object) {
	idx.objects[obj.ObjID] = obj
}

// Remove unlinks objID from the hash index, returning the removed object if
// it was present.
func (idx *Index) Remove(objID uint64) (*Object, bool) {
	obj, ok := idx.objects[objID]
	if ok {
		delete(idx.objects, objID)
	}
	return obj, ok
}

// Len reports the resident-object count (spec invariant I3).
func (idx *Index) Len() int {
	return len(idx.objects)
}

// Each iterates over resident objects in unspecified order.
func (idx *Index) Each(fn func(*Object)) {
	for _, obj := range idx.objects {
		fn(obj)
	}
}
