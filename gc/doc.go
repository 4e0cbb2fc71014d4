// Package gc implements the managed heap: allocation of typed objects, a
// stop-the-world tri-color mark-sweep collector, and in-place migration of
// live objects to new type layouts after hot recompilation.
//
// Objects are identified by a Handle, a slab slot index paired with the
// slot's generation. A handle stays valid from allocation until the object is
// reclaimed, including across migrations that change the object's type.
//
// Payload memory follows one convention everywhere: a field or array slot
// whose type is boxed (GC structs, arrays) holds an 8-byte little-endian
// Handle; a field whose type is inline embeds the value bytes of that type.
// Multi-byte primitives are stored little-endian.
//
// All structural operations take the heap's exclusive lock. Observers are
// invoked while the lock may be held and must not call back into the heap.
package gc
