/*
Package cache implements the cache object store, hash index, and shell
(spec §4.D/§4.E): the capacity accounting and get/find/insert/evict/remove
orchestration shared by every eviction policy.

# Architecture

	Request → Shell.Get → hash index lookup
	                         │
	                hit ─────┤───── miss
	                 │               │
	          Policy.OnAccess   admission.Admit
	                                 │
	                        Shell.makeRoomFor (Policy.PickVictim loop)
	                                 │
	                          Shell.Insert (Policy.OnInsert)

Shell owns capacity accounting, the resident-object hash index, and the
shell's virtual-time counter. It delegates every eviction-order decision to
an attached Policy (see internal/cache/policy/lru and
internal/cache/policy/lfu for two implementations, and
internal/cache/policy/scaffolded for the externally-decided policy).

# Object and Index

Object is a resident object's intrusive metadata: obj_id, size, access
count, timestamps, and a Prev/Next link pair whose head/tail arrangement is
owned by whichever Policy is attached — an LRU policy keeps them in
recency order, a frequency-node policy keeps them inside per-frequency
buckets. Index is the obj_id → Object hash map (spec invariant I2/I3).

# Policy

Policy is the capability interface every eviction algorithm implements:
OnInsert, OnAccess, OnEvict, PickVictim, ToEvict (preview without
mutation), Name, and Free (called once by Shell.Close so a policy's
resources are released deterministically — this closes the open question
in spec §9 about the original's on-teardown leak).

# Invariants

Shell enforces I1 (occupied bytes never exceeds capacity — makeRoomFor
evicts until there is room, or fails with ErrCodeObjectTooLarge) and
relies on its attached Policy to keep I4/I5 (policy-specific statistic
cardinalities) consistent; Remove never goes through the eviction path, so
Policy.OnEvict only sees capacity-driven evictions.
*/
package cache
