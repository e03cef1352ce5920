package billing

import (
	"strings"

	"github.com/scoopstack/backend-scoopstack/internal/customer"
)

// ResolveCustomer picks the customer a typed name refers to. An exact
// case-insensitive match always wins; failing that, a substring match is
// accepted only when it is unambiguous. No match, or an ambiguous one,
// resolves to nothing.
func ResolveCustomer(customers []customer.Customer, query string) (customer.Customer, bool) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return customer.Customer{}, false
	}

	for _, c := range customers {
		if strings.ToLower(c.Name) == needle {
			return c, true
		}
	}

	var found customer.Customer
	matches := 0
	for _, c := range customers {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			found = c
			matches++
		}
	}
	if matches == 1 {
		return found, true
	}
	return customer.Customer{}, false
}
