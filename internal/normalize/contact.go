package normalize

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pin-ingest/internal/model"
)

var validate = validator.New()

// Phone numbers are accepted with common punctuation and 7 to 15 digits
// (E.164 allows at most 15).
const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// ValidateContact rejects a contact whose non-empty email or phone is
// malformed. Empty values pass: they are missing, not wrong.
func ValidateContact(c model.Contact) error {
	if c.Email != "" {
		if err := validate.Var(c.Email, "email"); err != nil {
			return eris.Errorf("invalid email %q", c.Email)
		}
	}
	if c.Phone != "" && !validPhone(c.Phone) {
		return eris.Errorf("invalid phone %q", c.Phone)
	}
	return nil
}

func validPhone(p string) bool {
	digits := 0
	for i, r := range p {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case strings.ContainsRune(" -().", r):
		default:
			return false
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}
