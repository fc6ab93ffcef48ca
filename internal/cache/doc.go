// Package cache provides a byte-bounded LRU cache for immutable blocks.
//
// Matrix files cache decoded value blocks, the caching blob store caches raw
// ranges of remote blobs. Both share the same key space, separated by CacheKind.
// Memory held by the cache is accounted against an optional resource.Controller.
package cache
