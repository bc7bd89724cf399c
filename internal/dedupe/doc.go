// Package dedupe provides a TTL-based, size-bounded cache of seen activity
// keys. The chat platform redelivers POST /api/messages when an ack is
// slow, so the bridge drops any activity whose channel+id pair it has
// already processed.
package dedupe
