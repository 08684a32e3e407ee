package mailer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidContact marks a contact field holding no usable address.
var ErrInvalidContact = errors.New("invalid contact")

var validate = validator.New()

// ParseContacts splits a contact field on "," and ";" and validates each
// address. Empty entries are dropped.
func ParseContacts(contact string) ([]string, error) {
	var out []string
	for _, addr := range strings.Split(strings.ReplaceAll(contact, ";", ","), ",") {
		addr = strings.Trim(strings.TrimSpace(addr), `"`)
		if addr == "" {
			continue
		}
		if err := validate.Var(addr, "email"); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidContact, addr)
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q has no address", ErrInvalidContact, contact)
	}
	return out, nil
}
