// Package notifications delivers push notifications for task and account
// events through ntfy.
package notifications
