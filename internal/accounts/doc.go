// Package accounts manages the credentialed platform accounts the uploader
// rotates across: encrypted session credential storage, health monitoring
// against the remote platform, and least-recently-used selection.
package accounts
