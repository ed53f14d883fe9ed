/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Function-decoration adapter: wrap a target function, emit
             one event per invocation using a caller-supplied tenant
             extractor in place of parameter-name reflection.
Root Cause:  §4.F function decoration, and §9's note that Go has no
             runtime parameter-name introspection.
Suitability: L2 — a closure wrapper and a three-step tenant resolution
             order.
──────────────────────────────────────────────────────────────
*/

package metering

import "context"

// Handler is the shape Meter decorates: a function taking arbitrary
// positional arguments and returning a result and an error. Callers
// adapt their own function signatures to this shape at the call site.
type Handler func(args ...any) (any, error)

// TenantExtractor resolves a tenant ID from a call's arguments. It is
// the idiomatic Go substitute for the reflection-based parameter-name
// inspection a dynamically typed client would use.
type TenantExtractor func(args ...any) string

type meterConfig struct {
	tenantID  string
	extractor TenantExtractor
	quantity  int64
	metadata  map[string]interface{}
}

// MeterOption configures a single Meter decoration.
type MeterOption func(*meterConfig)

// WithTenantID binds a fixed tenant ID at decoration time, taking
// precedence over any extractor.
func WithTenantID(id string) MeterOption {
	return func(c *meterConfig) { c.tenantID = id }
}

// WithTenantExtractor supplies a closure that resolves the tenant ID
// from the decorated call's arguments.
func WithTenantExtractor(fn TenantExtractor) MeterOption {
	return func(c *meterConfig) { c.extractor = fn }
}

// WithEventQuantity overrides the default quantity of 1 per invocation.
func WithEventQuantity(q int64) MeterOption {
	return func(c *meterConfig) { c.quantity = q }
}

// WithEventMetadata attaches static metadata to every emitted event.
func WithEventMetadata(m map[string]interface{}) MeterOption {
	return func(c *meterConfig) { c.metadata = m }
}

// Meter returns a decorator that wraps a Handler: it invokes the target
// first, then emits one usage event, then returns the target's own
// result and error unchanged. A metering failure is logged and never
// returned to the caller.
func (c *Client) Meter(resource, feature string, opts ...MeterOption) func(Handler) Handler {
	cfg := meterConfig{quantity: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next Handler) Handler {
		return func(args ...any) (any, error) {
			result, callErr := next(args...)

			tenant := resolveTenant(cfg, args)
			event := Event{
				TenantID: tenant,
				Resource: resource,
				Feature:  feature,
				Quantity: cfg.quantity,
				Metadata: cfg.metadata,
			}
			if emitErr := c.Emit(context.Background(), event); emitErr != nil {
				c.logger.Warnf("emit failed for %s.%s: %v", resource, feature, emitErr)
			}

			return result, callErr
		}
	}
}

func resolveTenant(cfg meterConfig, args []any) string {
	if cfg.tenantID != "" {
		return cfg.tenantID
	}
	if cfg.extractor != nil {
		if t := cfg.extractor(args...); t != "" {
			return t
		}
	}
	return "unknown"
}
