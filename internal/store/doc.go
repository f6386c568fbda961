// Package store persists conversations and message-board posts.
//
// Memory keeps everything in process and is the default. Postgres stores the
// same data through sqlx on the pgx driver and applies its embedded goose
// migrations on open. Both are opened by the binary and closed on shutdown.
package store
