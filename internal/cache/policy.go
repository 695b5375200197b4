package cache

// Policy is the capability set every eviction policy satisfies (spec §4.F).
// All per-object metadata a policy needs beyond Object's own fields lives in
// Object.PolicyState, not in a separate allocation keyed by obj_id, except
// for auxiliary index structures the policy itself owns (e.g. a
// frequency-bucket map).
type Policy interface {
	// OnInsert is called once, immediately after a new Object is linked
	// into the hash index, with Freq already set to 1 and AdditionVtime
	// already set to the shell's current virtual time.
	OnInsert(obj *Object)
	// OnAccess is called on every cache hit, after the shell has already
	// updated LastAccessVtime.
	OnAccess(obj *Object)
	// OnEvict is called after PickVictim has chosen obj but before the
	// shell unlinks it from the hash index.
	OnEvict(obj *Object)
	// PickVictim chooses the next object to evict, or nil if the policy
	// has nothing resident.
	PickVictim() *Object
	// ToEvict previews the next victim without mutating any state. A
	// policy that cannot decouple preview from mutation returns
	// ok=false; the shell surfaces this as ErrCodeUnsupportedOperation.
	ToEvict() (obj *Object, ok bool)
	// Name identifies the policy for report lines (spec §6).
	Name() string
	// Free releases any policy-owned resources. Called exactly once, by
	// Shell.Close, before the shell itself is discarded.
	Free()
}
