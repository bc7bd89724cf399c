// Package connector talks to the chat platform: it resolves user
// identities through the directory API and delivers outbound activities
// through the conversation connector API. It also defines the activity
// envelope types shared with the bridge's inbound dispatch.
//
// The platform is an external collaborator; this package deliberately
// knows nothing about triggers, mailboxes, or jobs.
package connector
