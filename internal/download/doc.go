// Package download implements the Coordinator: a single serial worker that runs
// playlist refreshes and video downloads one at a time against a gateway,
// reconciles results into the data model, and forwards progress to observers
// through a UI-safe dispatcher.
//
// Every operation returns a Job that settles with an explicit Result, so a
// failed refresh or download is distinguishable from a successful one.
package download
