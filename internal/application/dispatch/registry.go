// Package dispatch routes payment operations to external processors.
package dispatch

import (
	"fmt"
	"sort"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
)

// DefaultRoutes maps every payment method type to the processor that handles it.
func DefaultRoutes() map[domain.PaymentMethodType]string {
	return map[domain.PaymentMethodType]string{
		domain.MethodCreditCard:      domain.ProcessorStripe,
		domain.MethodContactlessCard: domain.ProcessorStripe,
		domain.MethodMobilePayment:   domain.ProcessorPayPal,
		domain.MethodDigitalWallet:   domain.ProcessorPayPal,
		domain.MethodBankTransfer:    domain.ProcessorPlaid,
		domain.MethodCryptocurrency:  domain.ProcessorCoinbase,
		domain.MethodCash:            domain.ProcessorInternal,
		domain.MethodGiftCard:        domain.ProcessorInternal,
	}
}

// Registry is built once at startup and read-only afterwards.
type Registry struct {
	routes     map[domain.PaymentMethodType]string
	processors map[string]application.Processor
}

// NewRegistry fails if two processors share a name or a route points at a
// processor that was not supplied.
func NewRegistry(processors []application.Processor, routes map[domain.PaymentMethodType]string) (*Registry, error) {
	r := &Registry{
		routes:     make(map[domain.PaymentMethodType]string, len(routes)),
		processors: make(map[string]application.Processor, len(processors)),
	}

	for _, p := range processors {
		name := p.Name()
		if _, dup := r.processors[name]; dup {
			return nil, fmt.Errorf("processor %q registered twice", name)
		}
		r.processors[name] = p
	}

	for method, name := range routes {
		if _, ok := r.processors[name]; !ok {
			return nil, fmt.Errorf("route %s points at unregistered processor %q", method, name)
		}
		r.routes[method] = name
	}

	return r, nil
}

func (r *Registry) ProcessorFor(method domain.PaymentMethodType) (application.Processor, error) {
	name, ok := r.routes[method]
	if !ok {
		return nil, domain.NewNotSupportedError(fmt.Sprintf("payment method %s", method))
	}
	return r.processors[name], nil
}

func (r *Registry) ProcessorNamed(name string) (application.Processor, error) {
	p, ok := r.processors[name]
	if !ok {
		return nil, domain.NewNotSupportedError(fmt.Sprintf("processor %q", name))
	}
	return p, nil
}

// Names returns the registered processor names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
