// Package jobrunner starts remote automation jobs on the RPA
// orchestrator. It exchanges the application identity for a short-lived
// bearer credential via a client-credentials grant, then submits a
// fire-and-forget job-start request. Job completion is never observed
// here; the running job addresses the operator through the mailbox
// service and the bridge's send endpoints.
package jobrunner
