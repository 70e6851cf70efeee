package register

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

var (
	// ErrInvalidPhone matches every *InvalidPhoneError.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrNoMobileCountryCode is returned when the country has no known MCC.
	ErrNoMobileCountryCode = errors.New("no mobile country code for phone number")
	// ErrTooManyAttempts ends the flow once max attempts are used up.
	ErrTooManyAttempts = errors.New("too many registration attempts")
	// ErrUnsupported is returned by registrars that cannot register a phone number.
	ErrUnsupported = errors.New("mobile registration unsupported")
)

// ReasonCodeCheckpoint is the rejection reason that requires a captcha.
const ReasonCodeCheckpoint = "code_checkpoint"

// Method is how the one-time code is delivered.
type Method string

const (
	MethodSMS     Method = "sms"
	MethodVoice   Method = "voice"
	MethodCaptcha Method = "captcha"
)

// Registration is built during the flow and sent with every code request.
type Registration struct {
	PhoneNumber       string
	CountryCode       string
	NationalNumber    string
	MobileCountryCode string
	Method            Method
	Captcha           string
}

// CodeResponse is the answer to a code request. ImageBlob holds a base64
// encoded captcha image when Method was captcha.
type CodeResponse struct {
	ImageBlob string
}

// RequestError is a rejected code request.
type RequestError struct {
	Reason string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registration code request rejected (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("registration code request rejected (%s)", e.Reason)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Registrar is the part of a session able to register a new phone number.
type Registrar interface {
	RequestRegistrationCode(ctx context.Context, reg Registration) (CodeResponse, error)
	Register(ctx context.Context, code string) error
}

// Flow registers a phone number interactively.
type Flow struct {
	Registrar   Registrar
	Asker       Asker
	Out         io.Writer
	Logger      *zap.Logger
	MaxAttempts int

	// View opens the captcha image for the user. Defaults to OpenFile.
	View func(path string) error
	// TempDir holds the captcha image while it is shown. Defaults to os.TempDir.
	TempDir string
}

// Run walks through phone entry, method selection, code request and code
// entry. Failed requests and wrong codes go back to method selection until
// MaxAttempts is reached.
func (f *Flow) Run(ctx context.Context, phone string) error {
	if f.Logger == nil {
		f.Logger = zap.NewNop()
	}
	reg, err := f.prepare(ctx, phone)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < f.maxAttempts(); attempt++ {
		if reg.Method == "" {
			method, err := f.selectMethod(ctx)
			if err != nil {
				return err
			}
			if method == "" {
				continue
			}
			reg.Method = method
		}

		if _, err := f.Registrar.RequestRegistrationCode(ctx, reg); err != nil {
			if errors.Is(err, ErrUnsupported) || ctx.Err() != nil {
				return err
			}
			f.println("Failed to request registration code. Please try again.")
			f.Logger.Warn("registration code request failed", zap.Error(err), zap.Int("attempt", attempt+1))
			var reqErr *RequestError
			if errors.As(err, &reqErr) && reqErr.Reason == ReasonCodeCheckpoint {
				if err := f.solveCaptcha(ctx, &reg); err != nil {
					if ctx.Err() != nil || errors.Is(err, ErrInputClosed) {
						return err
					}
					f.Logger.Warn("captcha failed", zap.Error(err))
				}
			}
			continue
		}

		code, err := f.Asker.Ask(ctx, "Please enter the one time code:")
		if err != nil {
			return err
		}
		if err := f.Registrar.Register(ctx, clean(code)); err != nil {
			if ctx.Err() != nil {
				return err
			}
			f.println("Failed to register your phone number. Please try again.")
			f.Logger.Warn("registration failed", zap.Error(err), zap.Int("attempt", attempt+1))
			reg.Method = ""
			continue
		}

		f.println("Successfully registered your phone number.")
		f.Logger.Info("phone number registered", zap.String("phone", reg.PhoneNumber))
		return nil
	}
	return ErrTooManyAttempts
}

// prepare collects and validates the phone number. Both failures are final.
func (f *Flow) prepare(ctx context.Context, phone string) (Registration, error) {
	if phone == "" {
		var err error
		phone, err = f.Asker.Ask(ctx, "Please enter your mobile phone number:")
		if err != nil {
			return Registration{}, err
		}
	}
	p, err := NormalizePhone(phone)
	if err != nil {
		return Registration{}, err
	}
	mcc, ok := MobileCountryCode(p.CountryCode)
	if !ok {
		return Registration{}, fmt.Errorf("%w %s: specify the MCC manually", ErrNoMobileCountryCode, p.E164)
	}
	f.Logger.Info("phone number normalized",
		zap.String("phone", p.E164), zap.String("region", p.Region), zap.String("mcc", mcc))
	return Registration{
		PhoneNumber:       p.E164,
		CountryCode:       p.CountryCode,
		NationalNumber:    p.NationalNumber,
		MobileCountryCode: mcc,
	}, nil
}

// selectMethod returns an empty method when the answer was not understood.
func (f *Flow) selectMethod(ctx context.Context) (Method, error) {
	answer, err := f.Asker.Ask(ctx, `How would you like to receive the one time code for registration? "sms" or "voice"`)
	if err != nil {
		return "", err
	}
	switch m := Method(clean(answer)); m {
	case MethodSMS, MethodVoice:
		return m, nil
	default:
		f.println(`Please answer "sms" or "voice".`)
		return "", nil
	}
}

// solveCaptcha fetches a captcha image, shows it and stores the transcription
// in reg. The image file never outlives the call.
func (f *Flow) solveCaptcha(ctx context.Context, reg *Registration) error {
	captchaReg := *reg
	captchaReg.Method = MethodCaptcha
	resp, err := f.Registrar.RequestRegistrationCode(ctx, captchaReg)
	if err != nil {
		return fmt.Errorf("request captcha: %w", err)
	}
	image, err := base64.StdEncoding.DecodeString(resp.ImageBlob)
	if err != nil {
		return fmt.Errorf("decode captcha: %w", err)
	}

	tmp, err := os.CreateTemp(f.TempDir, "captcha-*.png")
	if err != nil {
		return fmt.Errorf("create captcha file: %w", err)
	}
	path := tmp.Name()
	defer func() { _ = os.Remove(path) }()

	_, werr := tmp.Write(image)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("write captcha file: %w", werr)
	}

	view := f.View
	if view == nil {
		view = OpenFile
	}
	if err := view(path); err != nil {
		f.Logger.Warn("failed to open captcha image", zap.Error(err), zap.String("path", path))
		f.println("Open the captcha image at " + path)
	}

	code, err := f.Asker.Ask(ctx, "Please enter the captcha code:")
	if err != nil {
		return err
	}
	reg.Captcha = clean(code)
	return nil
}

func (f *Flow) maxAttempts() int {
	if f.MaxAttempts <= 0 {
		return 1
	}
	return f.MaxAttempts
}

func (f *Flow) println(s string) {
	if f.Out != nil {
		_, _ = fmt.Fprintln(f.Out, s)
	}
}
