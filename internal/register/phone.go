package register

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Phone is a validated international phone number.
type Phone struct {
	E164           string
	CountryCode    string
	NationalNumber string
	Region         string
}

// NormalizePhone parses raw in international form. A missing leading "+" is
// assumed. Numbers that do not validate yield an *InvalidPhoneError.
func NormalizePhone(raw string) (Phone, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && !strings.HasPrefix(trimmed, "+") {
		trimmed = "+" + trimmed
	}
	num, err := phonenumbers.Parse(trimmed, "")
	if err != nil {
		return Phone{}, &InvalidPhoneError{Input: raw, Err: err}
	}
	if !phonenumbers.IsValidNumber(num) {
		return Phone{}, &InvalidPhoneError{Input: raw}
	}
	return Phone{
		E164:           phonenumbers.Format(num, phonenumbers.E164),
		CountryCode:    strconv.Itoa(int(num.GetCountryCode())),
		NationalNumber: strconv.FormatUint(num.GetNationalNumber(), 10),
		Region:         phonenumbers.GetRegionCodeForNumber(num),
	}, nil
}

// InvalidPhoneError reports a phone number that cannot be registered.
type InvalidPhoneError struct {
	Input string
	Err   error
}

func (e *InvalidPhoneError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid phone number %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("invalid phone number %q", e.Input)
}

func (e *InvalidPhoneError) Unwrap() error { return e.Err }

// Is makes every InvalidPhoneError match ErrInvalidPhone.
func (e *InvalidPhoneError) Is(target error) bool {
	return target == ErrInvalidPhone
}
