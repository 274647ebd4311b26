package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-process gateway for development and tests. Payments stay
// pending until Settle is called.
type Sandbox struct {
	BaseURL string

	mu          sync.Mutex
	failures    int
	payments    map[string]PaymentRequest
	states      map[string]PaymentState
	payouts     []PayoutInstruction
	payoutRefs  map[string]string
	initiations int
}

func NewSandbox(baseURL string) *Sandbox {
	return &Sandbox{
		BaseURL:    baseURL,
		payments:   map[string]PaymentRequest{},
		states:     map[string]PaymentState{},
		payoutRefs: map[string]string{},
	}
}

// FailNext makes the next n calls return ErrUnavailable.
func (s *Sandbox) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

// Settle records the final outcome of a payment as the gateway would report it.
func (s *Sandbox) Settle(reference string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.states[reference] = StateSuccess
	} else {
		s.states[reference] = StateFailed
	}
}

func (s *Sandbox) Initiations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initiations
}

func (s *Sandbox) Payouts() []PayoutInstruction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PayoutInstruction(nil), s.payouts...)
}

func (s *Sandbox) fail() bool {
	if s.failures > 0 {
		s.failures--
		return true
	}
	return false
}

func (s *Sandbox) InitiatePayment(_ context.Context, req PaymentRequest) (Checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initiations++
	if s.fail() {
		return Checkout{}, fmt.Errorf("%w: sandbox outage", ErrUnavailable)
	}
	s.payments[req.Reference] = req
	if _, ok := s.states[req.Reference]; !ok {
		s.states[req.Reference] = StatePending
	}
	return Checkout{CheckoutURL: s.BaseURL + "/checkout/" + req.Reference}, nil
}

func (s *Sandbox) PaymentStatus(_ context.Context, reference string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail() {
		return Status{}, fmt.Errorf("%w: sandbox outage", ErrUnavailable)
	}
	state, ok := s.states[reference]
	if !ok {
		state = StatePending
	}
	st := Status{Reference: reference, State: state}
	st.Raw, _ = json.Marshal(st)
	return st, nil
}

// SendPayout pays each reference once; a repeat returns the first payout's
// reference.
func (s *Sandbox) SendPayout(_ context.Context, in PayoutInstruction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail() {
		return "", fmt.Errorf("%w: sandbox outage", ErrUnavailable)
	}
	if ext, ok := s.payoutRefs[in.Reference]; ok {
		return ext, nil
	}
	ext := "PO-" + uuid.NewString()
	s.payoutRefs[in.Reference] = ext
	s.payouts = append(s.payouts, in)
	return ext, nil
}
