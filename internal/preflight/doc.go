// Package preflight provides readiness checks for the paths, credentials,
// and platform endpoint the daemon depends on.
//
// These checks run in two contexts:
//   - The daemon runs them once at startup and refuses to start when a
//     required check fails.
//   - The CLI "vidcast status" command uses them to display readiness.
package preflight
