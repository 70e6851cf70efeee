package register

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Pairer requests a code that links this device to an existing phone.
type Pairer interface {
	RequestPairingCode(ctx context.Context, phone string) (string, error)
}

// PairWithCode asks for the phone number and prints the pairing code to be
// typed on the phone under Linked devices.
func PairWithCode(ctx context.Context, p Pairer, asker Asker, out io.Writer) error {
	phone, err := asker.Ask(ctx, "Please enter your mobile phone number:")
	if err != nil {
		return err
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return errors.New("phone number is empty")
	}

	code, err := p.RequestPairingCode(ctx, phone)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Pairing code: %s\n", code)
	return nil
}
