package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmailDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"simple", "jane@acme.com", "acme.com"},
		{"subdomain", "jane@mail.acme.com", "mail.acme.com"},
		{"plus address", "jane+crm@acme.com", "acme.com"},
		{"quoted local with at", `"jane@home"@acme.com`, "acme.com"},
		{"empty", "", ""},
		{"no at sign", "jane.acme.com", ""},
		{"trailing at", "jane@", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Contact{Email: tt.email}
			assert.Equal(t, tt.want, c.EmailDomain())
		})
	}
}

func TestIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		contact Contact
		want    string
	}{
		{"company wins", Contact{Company: "Acme Corp", Email: "jane@acme.com"}, "Acme Corp"},
		{"falls back to email domain", Contact{Email: "jane@acme.com"}, "acme.com"},
		{"neither available", Contact{}, ""},
		{"unusable email", Contact{Email: "not-an-email"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.contact.Identifier())
		})
	}
}
