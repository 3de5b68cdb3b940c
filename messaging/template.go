package messaging

import (
	"html"

	authgate "github.com/tradewire/authgate"
)

// DefaultTemplate renders the stock enrollment and confirmation mail bodies.
// It implements [authgate.MailTemplate].
type DefaultTemplate struct{}

var _ authgate.MailTemplate = DefaultTemplate{}

// VerificationHTML describes the verificationhtml operation and its observable behavior.
//
// VerificationHTML does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (DefaultTemplate) VerificationHTML(email, verificationLink string) string {
	link := html.EscapeString(verificationLink)
	return "<p>Hello " + html.EscapeString(email) + ",</p>" +
		"<p>Please confirm this email address by following the link below:</p>" +
		`<p><a href="` + link + `">` + link + "</a></p>" +
		"<p>If you did not request this, ignore this message.</p>"
}

// VerificationText describes the verificationtext operation and its observable behavior.
//
// VerificationText does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (DefaultTemplate) VerificationText(email, verificationLink string) string {
	return "Hello " + email + ",\n\n" +
		"Please confirm this email address by following the link below:\n\n" +
		verificationLink + "\n\n" +
		"If you did not request this, ignore this message.\n"
}

// CodeHTML describes the codehtml operation and its observable behavior.
//
// CodeHTML does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (DefaultTemplate) CodeHTML(email, code string) string {
	return "<p>Hello " + html.EscapeString(email) + ",</p>" +
		"<p>Your confirmation code is: <b>" + html.EscapeString(code) + "</b></p>"
}

// CodeText describes the codetext operation and its observable behavior.
//
// CodeText does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (DefaultTemplate) CodeText(email, code string) string {
	return "Hello " + email + ",\n\nYour confirmation code is: " + code + "\n"
}
