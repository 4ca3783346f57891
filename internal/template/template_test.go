package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	vars := map[string]string{"name": "Maria", "department": "RH"}

	assert.Equal(t, "Olá Maria, do setor RH", Render("Olá {{name}}, do setor {{department}}", vars))
	assert.Equal(t, "Maria e Maria", Render("{{name}} e {{name}}", vars), "same variable may repeat")
	assert.Equal(t, "Olá ", Render("Olá {{missing}}", vars), "absent variables render empty")
}

func TestRenderCaseSensitiveKeys(t *testing.T) {
	out := Render("{{Name}}", map[string]string{"name": "Maria"})
	assert.Equal(t, "", out)
}

func TestRenderMalformedPlaceholderLeftVerbatim(t *testing.T) {
	body := "Olá {{name, tudo bem?"
	assert.Equal(t, body, Render(body, map[string]string{"name": "Maria"}))
}

func TestRenderIdempotent(t *testing.T) {
	body := "mensagem sem variáveis"
	assert.Equal(t, body, Render(Render(body, nil), nil))

	vars := map[string]string{"name": "Maria"}
	once := Render("Oi {{name}}", vars)
	assert.Equal(t, once, Render(once, vars))
}

func TestExtractVariables(t *testing.T) {
	names := ExtractVariables("Oi {{name}}, seu setor é {{department}} e {{name}} de novo")
	assert.Equal(t, []string{"name", "department"}, names, "distinct names in first-seen order")

	assert.Empty(t, ExtractVariables("sem placeholders"))
	assert.Empty(t, ExtractVariables("malformado {{aberto"))
}
