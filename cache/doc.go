// Package cache implements the deduplicating subscription registry for
// live query results.
//
// Many UI components may want the same logical query at once. The registry
// keeps one transport subscription per distinct query key, remembers the
// latest pushed result, fans pushes out to every attached listener, and
// tears the subscription down when the last listener detaches. Lifetime is
// driven purely by listener reference counts: no TTLs, no eviction.
package cache
