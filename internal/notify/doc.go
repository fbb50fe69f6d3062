// Package notify delivers job outcome messages to the uploader.
//
// Mailer sends plain-text email over SMTP; LogNotifier is used when no mail
// server is configured. Delivery errors are returned to the dispatcher, which
// only logs them.
package notify
