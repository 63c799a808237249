// Package chaos implements the central failure-injection authority of
// spec.md §4.10: payment chaos, event chaos, and API chaos, each
// config-driven with readable counters for test assertions. New code,
// modeled on the teacher's config-driven/counters-readable-for-asserts
// style (internal/ratelimit exposes hit/reject counters the same way to
// internal/metrics). math/rand is used directly for weighted/uniform
// sampling over small fixed sets — stdlib is correct here, this is not a
// library concern.
package chaos

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/EnaiaInc/paper-tiger/internal/metrics"
)

// Stats is the set of counters readable for test assertions, updated on
// every chaos decision.
type Stats struct {
	PaymentsSucceeded int64
	PaymentsFailed    int64
	EventsReordered   int64
	EventsDuplicated  int64
	APITimeouts       int64
	APIRateLimits     int64
	APIServerErrors   int64
}

// PaymentConfig configures the payment-failure family.
type PaymentConfig struct {
	FailureRate    float64            // [0,1): global probability a payment fails
	DeclineCodes   []string           // codes to sample uniformly when DeclineWeights is empty
	DeclineWeights map[string]float64 // optional weighted sampling over a subset of DeclineCodes
}

// APIConfig configures the API-failure family, per spec.md §4.10: a
// single uniform draw maps sequentially to timeout/rate-limit/error
// bands.
type APIConfig struct {
	TimeoutRate   float64
	RateLimitRate float64
	ErrorRate     float64
}

// Coordinator is the process-wide chaos authority.
type Coordinator struct {
	mu sync.Mutex

	payment         PaymentConfig
	api             APIConfig
	customerOverride map[string]string // customer id -> forced decline code ("" clears)
	endpointOverride map[string]APIDecision

	stats   Stats
	rng     *rand.Rand
	metrics *metrics.Metrics
}

// SetMetrics attaches the process's metrics collector so payment-chaos
// decisions are observed as Prometheus counters. Optional — a Coordinator
// built by tests with no metrics attached just skips the observation.
func (c *Coordinator) SetMetrics(m *metrics.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// New constructs a Coordinator with the defaults of a benign mock (no
// injected failures until configured otherwise).
func New() *Coordinator {
	return &Coordinator{
		customerOverride: map[string]string{},
		endpointOverride: map[string]APIDecision{},
		rng:              rand.New(rand.NewSource(1)),
	}
}

// Configure replaces the payment and API chaos configuration. It rejects
// payment.DeclineCodes/DeclineWeights entries that aren't one of the
// pre-declared codes in the canonical decline-message table (decline.go),
// per spec.md §4.10's "invalid (not pre-declared) code names are rejected
// at configuration time" — the prior config is left untouched on error.
func (c *Coordinator) Configure(payment PaymentConfig, api APIConfig) error {
	for _, code := range payment.DeclineCodes {
		if !IsDeclineCode(code) {
			return fmt.Errorf("chaos: unknown decline code %q", code)
		}
	}
	for code := range payment.DeclineWeights {
		if !IsDeclineCode(code) {
			return fmt.Errorf("chaos: unknown decline code %q", code)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.payment = payment
	c.api = api
	return nil
}

// SetCustomerOverride forces a specific customer's payments to decline
// with the given code (or clears an override when code is "").
func (c *Coordinator) SetCustomerOverride(customerID, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if code == "" {
		delete(c.customerOverride, customerID)
		return
	}
	c.customerOverride[customerID] = code
}

// PaymentOutcome is the result of a payment-chaos decision.
type PaymentOutcome struct {
	Declined bool
	Code     string
}

// ShouldPaymentFail decides whether customerID's payment should fail,
// per spec.md §4.10: customer-level overrides take precedence; otherwise
// a uniform draw against FailureRate selects decline (uniformly or by
// weight) from the configured codes.
func (c *Coordinator) ShouldPaymentFail(customerID string) PaymentOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if code, ok := c.customerOverride[customerID]; ok {
		c.stats.PaymentsFailed++
		c.observePaymentDecisionLocked(code)
		return PaymentOutcome{Declined: true, Code: code}
	}

	if c.rng.Float64() >= c.payment.FailureRate {
		c.stats.PaymentsSucceeded++
		c.observePaymentDecisionLocked("ok")
		return PaymentOutcome{Declined: false}
	}

	c.stats.PaymentsFailed++
	code := c.sampleDeclineCodeLocked()
	c.observePaymentDecisionLocked(code)
	return PaymentOutcome{Declined: true, Code: code}
}

func (c *Coordinator) observePaymentDecisionLocked(outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveChaosPaymentDecision(outcome)
	}
}

func (c *Coordinator) sampleDeclineCodeLocked() string {
	if len(c.payment.DeclineWeights) > 0 {
		total := 0.0
		for _, w := range c.payment.DeclineWeights {
			total += w
		}
		draw := c.rng.Float64() * total
		cumulative := 0.0
		for _, code := range c.payment.DeclineCodes {
			w, ok := c.payment.DeclineWeights[code]
			if !ok {
				continue
			}
			cumulative += w
			if draw < cumulative {
				return code
			}
		}
	}
	if len(c.payment.DeclineCodes) == 0 {
		return "card_declined"
	}
	return c.payment.DeclineCodes[c.rng.Intn(len(c.payment.DeclineCodes))]
}

// APIDecision is the result of an API-chaos decision.
type APIDecision int

const (
	APIOk APIDecision = iota
	APITimeout
	APIRateLimit
	APIServerError
)

// SetEndpointOverride forces path to always resolve to decision.
func (c *Coordinator) SetEndpointOverride(path string, decision APIDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpointOverride[path] = decision
}

// ShouldAPIFail decides the API-chaos outcome for path, per spec.md
// §4.10: endpoint overrides first, then a single uniform draw mapped
// sequentially to timeout/rate-limit/error bands.
func (c *Coordinator) ShouldAPIFail(path string) APIDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.endpointOverride[path]; ok {
		c.countAPIDecisionLocked(d)
		return d
	}

	draw := c.rng.Float64()
	switch {
	case draw < c.api.TimeoutRate:
		c.stats.APITimeouts++
		return APITimeout
	case draw < c.api.TimeoutRate+c.api.RateLimitRate:
		c.stats.APIRateLimits++
		return APIRateLimit
	case draw < c.api.TimeoutRate+c.api.RateLimitRate+c.api.ErrorRate:
		c.stats.APIServerErrors++
		return APIServerError
	default:
		return APIOk
	}
}

func (c *Coordinator) countAPIDecisionLocked(d APIDecision) {
	switch d {
	case APITimeout:
		c.stats.APITimeouts++
	case APIRateLimit:
		c.stats.APIRateLimits++
	case APIServerError:
		c.stats.APIServerErrors++
	}
}

// Stats returns a snapshot of the decision counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Reset restores defaults and clears customer/endpoint overrides and
// counters, per spec.md §4.10.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payment = PaymentConfig{}
	c.api = APIConfig{}
	c.customerOverride = map[string]string{}
	c.endpointOverride = map[string]APIDecision{}
	c.stats = Stats{}
}
