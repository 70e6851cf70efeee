package register

import (
	"context"
	"encoding/base64"
	"os"
	"sync"
)

// scriptedAsker answers questions from a fixed script and records them.
type scriptedAsker struct {
	answers   []string
	questions []string
}

func (s *scriptedAsker) Ask(_ context.Context, question string) (string, error) {
	s.questions = append(s.questions, question)
	if len(s.answers) == 0 {
		return "", ErrInputClosed
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

// fakeRegistrar fails requests and registrations from queued errors.
type fakeRegistrar struct {
	mu          sync.Mutex
	requestErrs []error
	registerErr []error
	requests    []Registration
	codes       []string
}

var captchaPNG = base64.StdEncoding.EncodeToString([]byte("\x89PNG fake"))

func (f *fakeRegistrar) RequestRegistrationCode(_ context.Context, reg Registration) (CodeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, reg)
	if reg.Method == MethodCaptcha {
		return CodeResponse{ImageBlob: captchaPNG}, nil
	}
	if len(f.requestErrs) > 0 {
		err := f.requestErrs[0]
		f.requestErrs = f.requestErrs[1:]
		if err != nil {
			return CodeResponse{}, err
		}
	}
	return CodeResponse{}, nil
}

func (f *fakeRegistrar) Register(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	if len(f.registerErr) > 0 {
		err := f.registerErr[0]
		f.registerErr = f.registerErr[1:]
		return err
	}
	return nil
}

type fakePairer struct {
	phone string
	code  string
	err   error
}

func (f *fakePairer) RequestPairingCode(_ context.Context, phone string) (string, error) {
	f.phone = phone
	return f.code, f.err
}

// dirEntries lists the names in dir.
func dirEntries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
