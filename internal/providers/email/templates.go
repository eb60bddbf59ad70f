package email

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"sync"
)

const TemplateAffiliateInvitation = "affiliate_invitation"

var (
	ErrNoRecipients    = errors.New("email_no_recipients")
	ErrUnknownTemplate = errors.New("email_unknown_template")
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	templatesOnce sync.Once
	templates     *template.Template
	templatesErr  error
)

func loadTemplates() (*template.Template, error) {
	templatesOnce.Do(func() {
		templates, templatesErr = template.ParseFS(templateFS, "templates/*.html")
	})
	return templates, templatesErr
}

// Render executes the named template and returns subject and HTML body. A
// "subject" key in data overrides the template default.
func Render(templateName string, data map[string]any) (string, string, error) {
	set, err := loadTemplates()
	if err != nil {
		return "", "", fmt.Errorf("failed to parse templates: %w", err)
	}
	t := set.Lookup(templateName + ".html")
	if t == nil {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTemplate, templateName)
	}

	var body bytes.Buffer
	if err := t.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("failed to execute template: %w", err)
	}
	return subjectFor(templateName, data), body.String(), nil
}

func subjectFor(templateName string, data map[string]any) string {
	if subj, ok := data["subject"].(string); ok && subj != "" {
		return subj
	}
	switch templateName {
	case TemplateAffiliateInvitation:
		sender, _ := data["sender_name"].(string)
		site, _ := data["site_name"].(string)
		switch {
		case sender != "" && site != "":
			return fmt.Sprintf("%s invited you to become an ambassador for %s", sender, site)
		case site != "":
			return fmt.Sprintf("You're invited to become an ambassador for %s", site)
		default:
			return "You're invited to become a Vegvisr ambassador"
		}
	}
	return "Notification from Vegvisr"
}
