package near

import (
	"fmt"
	"regexp"
	"strings"
)

// accountIDPattern follows the nearcore account id grammar: lowercase
// alphanumeric parts separated by '.', '-' or '_'.
var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

// ValidateAccountID checks a NEAR account id.
func ValidateAccountID(id string) error {
	if len(id) < 2 || len(id) > 64 {
		return fmt.Errorf("invalid account id length: %q", id)
	}
	if !accountIDPattern.MatchString(id) {
		return fmt.Errorf("invalid account id: %q", id)
	}
	return nil
}

// ParseAccountIDs trims, drops empty entries and validates each account id.
func ParseAccountIDs(inputs []string) ([]string, error) {
	ids := make([]string, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if err := ValidateAccountID(input); err != nil {
			return nil, err
		}
		ids = append(ids, input)
	}
	return ids, nil
}
