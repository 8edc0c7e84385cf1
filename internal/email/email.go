// Package email is the outbound-mail collaborator: a template registry plus a
// Sender that delivers rendered messages. Delivery failures are the caller's
// to classify; nothing here retries.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
	texttemplate "text/template"
)

// Template is a named message with HTML and plain-text bodies. Bodies use
// Go template syntax; Subject too.
type Template struct {
	Name    string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// Mailer renders registered templates and hands them to the Sender.
type Mailer struct {
	sender Sender

	mu        sync.RWMutex
	templates map[string]*compiled
}

type compiled struct {
	subject *texttemplate.Template
	html    *template.Template
	text    *texttemplate.Template
}

// NewMailer builds a Mailer over the given sender.
func NewMailer(sender Sender) *Mailer {
	return &Mailer{sender: sender, templates: make(map[string]*compiled)}
}

// RegisterTemplate compiles and stores a template, replacing any previous one
// with the same name.
func (m *Mailer) RegisterTemplate(t Template) error {
	subject, err := texttemplate.New(t.Name + ":subject").Parse(t.Subject)
	if err != nil {
		return fmt.Errorf("email: template %s subject: %w", t.Name, err)
	}
	html, err := template.New(t.Name + ":html").Parse(t.HTML)
	if err != nil {
		return fmt.Errorf("email: template %s html: %w", t.Name, err)
	}
	text, err := texttemplate.New(t.Name + ":text").Parse(t.Text)
	if err != nil {
		return fmt.Errorf("email: template %s text: %w", t.Name, err)
	}

	m.mu.Lock()
	m.templates[t.Name] = &compiled{subject: subject, html: html, text: text}
	m.mu.Unlock()
	return nil
}

// Send renders templateName with vars and delivers it to the address.
func (m *Mailer) Send(ctx context.Context, templateName, to string, vars map[string]any) error {
	m.mu.RLock()
	tpl, ok := m.templates[templateName]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("email: unknown template %q", templateName)
	}

	var subject, html, text bytes.Buffer
	if err := tpl.subject.Execute(&subject, vars); err != nil {
		return fmt.Errorf("email: render %s subject: %w", templateName, err)
	}
	if err := tpl.html.Execute(&html, vars); err != nil {
		return fmt.Errorf("email: render %s html: %w", templateName, err)
	}
	if err := tpl.text.Execute(&text, vars); err != nil {
		return fmt.Errorf("email: render %s text: %w", templateName, err)
	}

	return m.sender.Send(to, subject.String(), html.String(), text.String())
}
