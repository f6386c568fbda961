// Package cache memoizes generated replies.
//
// Keys are derived deterministically from the model, the generation options
// and the prompt. Values live in memory or in Redis, and a Policy decides
// their TTL. Failed generations are never cached.
package cache
