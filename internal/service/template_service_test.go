package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	vars := recipientVars("Jo", "Bloggs", "jo@example.com")

	assert.Equal(t, "Hi Jo Bloggs <jo@example.com>", RenderTemplate("Hi {full_name} <{email}>", vars))
	assert.Equal(t, "Hi {unknown}", RenderTemplate("Hi {unknown}", vars))
}

func TestRenderTemplate_ValuesAreNotExpandedAgain(t *testing.T) {
	vars := recipientVars("{email}", "{last_name}", "jo@example.com")

	// repeated to catch any dependence on map iteration order
	for n := 0; n < 50; n++ {
		assert.Equal(t, "Hi {email} / jo@example.com", RenderTemplate("Hi {first_name} / {email}", vars))
		assert.Equal(t, "{email} {last_name}", RenderTemplate("{full_name}", vars))
	}
}

func TestRenderHTMLTemplate_EscapesValues(t *testing.T) {
	vars := recipientVars("<b>Jo</b>", "", "jo@example.com")

	assert.Equal(t, "<p>&lt;b&gt;Jo&lt;/b&gt;</p>", RenderHTMLTemplate("<p>{first_name}</p>", vars))
}
