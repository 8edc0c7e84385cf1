package email

// Built-in template names. Operators can re-register any of them.
const (
	TemplateVerify      = "verify-email"
	TemplateVerifyCode  = "verify-email-code"
	TemplateReset       = "reset-password"
	TemplateChangeEmail = "change-email"
	TemplateMagicLink   = "magic-link"
	TemplateTeamInvite  = "team-invite"
)

// RegisterDefaults installs the built-in templates.
func RegisterDefaults(m *Mailer) error {
	defaults := []Template{
		{
			Name:    TemplateVerify,
			Subject: "Verify your email",
			HTML:    `<p>Welcome! Confirm your address by clicking <a href="{{.Link}}">here</a>.</p>`,
			Text:    "Welcome! Confirm your address: {{.Link}}",
		},
		{
			Name:    TemplateVerifyCode,
			Subject: "Your verification code",
			HTML:    `<p>Your verification code is <b>{{.Code}}</b>. It expires in {{.TTL}}.</p>`,
			Text:    "Your verification code is {{.Code}}. It expires in {{.TTL}}.",
		},
		{
			Name:    TemplateReset,
			Subject: "Reset your password",
			HTML:    `<p>Someone requested a password reset. If that was you, click <a href="{{.Link}}">here</a>. Otherwise ignore this message.</p>`,
			Text:    "Reset your password: {{.Link}}",
		},
		{
			Name:    TemplateChangeEmail,
			Subject: "Confirm your new email",
			HTML:    `<p>Confirm your new address by clicking <a href="{{.Link}}">here</a>.</p>`,
			Text:    "Confirm your new address: {{.Link}}",
		},
		{
			Name:    TemplateMagicLink,
			Subject: "Your sign-in link",
			HTML:    `<p>Sign in by clicking <a href="{{.Link}}">here</a>. The link is valid once.</p>`,
			Text:    "Sign in: {{.Link}}",
		},
		{
			Name:    TemplateTeamInvite,
			Subject: "You have been invited",
			HTML:    `<p>You were invited to join. Register here: <a href="{{.Link}}">{{.Link}}</a></p>`,
			Text:    "You were invited to join. Register here: {{.Link}}",
		},
	}
	for _, t := range defaults {
		if err := m.RegisterTemplate(t); err != nil {
			return err
		}
	}
	return nil
}
