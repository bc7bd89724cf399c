// Package bridge connects inbound chat activities to the mailbox and the
// job runner. Each inbound message is classified as a trigger (starts a
// remote job) or a payload (enqueued for the running job to poll), after
// stripping the bot's own @-mention and dropping the bot's own echoed
// messages.
//
// The bridge tracks a single "current conversation" slot, overwritten on
// every inbound message. Concurrent conversations on one process clobber
// that slot; this is a documented capacity limit of the deployment, not
// an accident.
package bridge
