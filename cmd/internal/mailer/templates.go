package mailer

import (
	"bytes"
	htmltemplate "html/template"
	"net/url"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"
)

// Links builds the absolute URLs embedded in account e-mails.
type Links struct {
	BaseURL string
}

// Verify is the e-mail verification link for raw.
func (l Links) Verify(raw string) string {
	return strings.TrimRight(l.BaseURL, "/") + "/api/auth/verify/" + url.PathEscape(raw)
}

// Reset is the password reset link for raw.
func (l Links) Reset(raw string) string {
	return strings.TrimRight(l.BaseURL, "/") + "/reset-password/" + url.PathEscape(raw)
}

type templateData struct {
	Name    string
	Link    string
	Expires string
}

var (
	verifyText = texttemplate.Must(texttemplate.New("verify").Parse(
		`Hi {{.Name}},

Confirm your WhisperLink e-mail address by opening the link below.
It expires in {{.Expires}}.

{{.Link}}

If you did not sign up, ignore this message.
`))
	verifyHTML = htmltemplate.Must(htmltemplate.New("verify").Parse(
		`<p>Hi {{.Name}},</p>
<p>Confirm your WhisperLink e-mail address. The link expires in {{.Expires}}.</p>
<p><a href="{{.Link}}">Verify my e-mail</a></p>
<p>If you did not sign up, ignore this message.</p>
`))
	resetText = texttemplate.Must(texttemplate.New("reset").Parse(
		`Hi {{.Name}},

Someone asked to reset your WhisperLink password. The link below works once
and expires in {{.Expires}}.

{{.Link}}

If it was not you, ignore this message; your password stays the same.
`))
	resetHTML = htmltemplate.Must(htmltemplate.New("reset").Parse(
		`<p>Hi {{.Name}},</p>
<p>Someone asked to reset your WhisperLink password. The link works once and expires in {{.Expires}}.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>If it was not you, ignore this message; your password stays the same.</p>
`))
)

// VerificationMessage renders the e-mail verification message.
func VerificationMessage(to, name, link string, ttl time.Duration) (Message, error) {
	return render(to, "Verify your WhisperLink e-mail", verifyText, verifyHTML,
		templateData{Name: name, Link: link, Expires: humanDuration(ttl)})
}

// PasswordResetMessage renders the password reset message.
func PasswordResetMessage(to, name, link string, ttl time.Duration) (Message, error) {
	return render(to, "Reset your WhisperLink password", resetText, resetHTML,
		templateData{Name: name, Link: link, Expires: humanDuration(ttl)})
}

func render(to, subject string, text *texttemplate.Template, html *htmltemplate.Template, data templateData) (Message, error) {
	var tb, hb bytes.Buffer
	if err := text.Execute(&tb, data); err != nil {
		return Message{}, err
	}
	if err := html.Execute(&hb, data); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, Text: tb.String(), HTML: hb.String()}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return strconv.Itoa(h) + " hours"
	case d >= time.Minute && d%time.Minute == 0:
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return strconv.Itoa(m) + " minutes"
	default:
		return d.String()
	}
}
