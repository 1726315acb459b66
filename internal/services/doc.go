// Package services defines the shared error taxonomy and context helpers used
// across the upload pipeline. Errors are tagged with sentinel markers so the
// scheduler can choose between retrying a task and failing it terminally
// without inspecting error strings.
package services
