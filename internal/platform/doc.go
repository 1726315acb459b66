// Package platform implements the remote upload protocol: negotiating an
// upload session, streaming file chunks, merging them, and submitting the
// final metadata.
package platform
