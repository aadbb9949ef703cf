// internal/service/template_service.go
package service

import (
	"context"
	"html"
	"sort"
	"strings"

	"github.com/unclebandit/garage-campaigns/internal/model"
	"github.com/unclebandit/garage-campaigns/internal/repository"
)

// RenderTemplate replaces every {key} with its value in a single pass, so
// substituted values are never expanded again.
func RenderTemplate(template string, data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// RenderHTMLTemplate is RenderTemplate with values escaped for HTML.
func RenderHTMLTemplate(template string, data map[string]string) string {
	escaped := make(map[string]string, len(data))
	for k, v := range data {
		escaped[k] = html.EscapeString(v)
	}
	return RenderTemplate(template, escaped)
}

func recipientVars(firstName, lastName, email string) map[string]string {
	return map[string]string{
		"first_name": firstName,
		"last_name":  lastName,
		"full_name":  strings.TrimSpace(firstName + " " + lastName),
		"email":      email,
	}
}

// content is the unrendered body of a campaign.
type content struct {
	Subject string
	HTML    string
	Text    string
}

func (c content) render(vars map[string]string) content {
	return content{
		Subject: RenderTemplate(c.Subject, vars),
		HTML:    RenderHTMLTemplate(c.HTML, vars),
		Text:    RenderTemplate(c.Text, vars),
	}
}

// loadContent resolves the body template a campaign points at. A campaign
// without a template sends its subject with an empty body.
func loadContent(ctx context.Context, repo repository.SendContextRepository, c *model.Campaign) (content, error) {
	out := content{Subject: c.Subject}
	if c.TemplateID == nil {
		return out, nil
	}
	tpl, err := repo.GetTemplate(ctx, c.TenantID, *c.TemplateID)
	if err != nil {
		return out, err
	}
	out.HTML = tpl.HTMLBody
	if tpl.TextBody != nil {
		out.Text = *tpl.TextBody
	}
	return out, nil
}
