// Package model defines the domain types shared across the pipeline.
package model

import "strings"

// Contact is a CRM contact with its associated company identity. Only the
// remote record is ever mutated; local copies are transient per-run values.
type Contact struct {
	ID      string `json:"id"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
}

// EmailDomain returns the domain part of the contact's email address, or ""
// when no usable email is present.
func (c Contact) EmailDomain() string {
	at := strings.LastIndex(c.Email, "@")
	if at < 0 || at == len(c.Email)-1 {
		return ""
	}
	return c.Email[at+1:]
}

// Identifier returns the best available company identifier: the company name
// when set, otherwise the email domain. Empty when neither is available, in
// which case the contact cannot be categorized.
func (c Contact) Identifier() string {
	if c.Company != "" {
		return c.Company
	}
	return c.EmailDomain()
}
