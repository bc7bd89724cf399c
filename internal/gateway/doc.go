// Package gateway assembles the relay service: it builds the mailbox,
// the conversation bridge, and the platform and orchestrator clients
// from configuration, and owns the two HTTP servers and their lifecycle.
//
// Startup binds both listeners before fetching the orchestrator
// credential, so the ports come up even when the identity service is
// slow; a credential refusal still aborts startup. Shutdown drains both
// servers with a bounded grace period.
package gateway
