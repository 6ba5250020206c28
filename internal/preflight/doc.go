// Package preflight provides readiness checks for the directories, binaries
// and external services scribe depends on.
//
// These checks run in two contexts:
//   - The daemon calls CheckSystemDeps at startup and logs a dependency
//     snapshot, refusing to start only when a required binary is missing.
//   - The CLI "scribe doctor" command renders RunAll and CheckSystemDeps as
//     tables and can probe the extraction model live.
package preflight
