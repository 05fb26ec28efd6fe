package adapters

import (
	"strings"

	"github.com/smallbiznis/mealsub/internal/payment/domain"
)

// Registry routes a payment method to the processor that handles it.
type Registry struct {
	processors map[string]domain.Processor
}

func NewRegistry(processors ...domain.Processor) *Registry {
	registry := &Registry{processors: map[string]domain.Processor{}}
	for _, processor := range processors {
		if processor == nil {
			continue
		}
		for _, method := range processor.Methods() {
			method = NormalizeMethod(method)
			if method == "" {
				continue
			}
			registry.processors[method] = processor
		}
	}
	return registry
}

func (r *Registry) MethodExists(method string) bool {
	if r == nil {
		return false
	}
	_, ok := r.processors[NormalizeMethod(method)]
	return ok
}

func (r *Registry) ProcessorFor(method string) (domain.Processor, error) {
	if r == nil {
		return nil, domain.ErrUnsupportedMethod
	}
	processor, ok := r.processors[NormalizeMethod(method)]
	if !ok {
		return nil, domain.ErrUnsupportedMethod
	}
	return processor, nil
}

func NormalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}
