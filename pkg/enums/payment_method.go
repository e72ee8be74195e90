package enums

import (
	"fmt"
	"slices"
	"strings"
)

// PaymentMethod records how the buyer says they will pay. Payment itself is
// settled outside the system.
type PaymentMethod string

const (
	PaymentMethodBCA            PaymentMethod = "BCA"
	PaymentMethodBSI            PaymentMethod = "BSI"
	PaymentMethodGopay          PaymentMethod = "gopay"
	PaymentMethodDana           PaymentMethod = "dana"
	PaymentMethodManualTransfer PaymentMethod = "transfer_manual"
)

func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		PaymentMethodBCA,
		PaymentMethodBSI,
		PaymentMethodGopay,
		PaymentMethodDana,
		PaymentMethodManualTransfer,
	}
}

func (p PaymentMethod) String() string { return string(p) }

// IsValid reports whether p is a known method in its canonical spelling.
func (p PaymentMethod) IsValid() bool {
	return slices.Contains(PaymentMethods(), p)
}

// ParsePaymentMethod matches value against the known methods ignoring case
// and surrounding space, and returns the canonical spelling.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	trimmed := strings.TrimSpace(value)
	for _, m := range PaymentMethods() {
		if strings.EqualFold(string(m), trimmed) {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
