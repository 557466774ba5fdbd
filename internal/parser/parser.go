package parser

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type DailyRevenue struct {
	Day     time.Time
	Revenue decimal.Decimal
}

// Decoder extracts per-day revenue of a single site from an uploaded network report.
// Keys of the result are calendar days at midnight UTC.
type Decoder interface {
	Decode(path string, site string) (map[time.Time]DailyRevenue, error)
}

type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
}

type ParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}

	return fmt.Sprintf("line %d, column %s: cannot parse %q, %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Registry maps network identifiers to decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// DefaultRegistry knows every report format the service ships with.
func DefaultRegistry(logg Logger) *Registry {
	r := NewRegistry()
	r.Register(Network33Across, New33Across(logg))

	return r
}

func (r *Registry) Register(network string, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.decoders[network] = decoder
}

// Resolve returns the decoder registered for network. Unknown networks are not an error,
// the caller decides what to do with them.
func (r *Registry) Resolve(network string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decoder, ok := r.decoders[network]

	return decoder, ok
}

func (r *Registry) Networks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	networks := make([]string, 0, len(r.decoders))
	for network := range r.decoders {
		networks = append(networks, network)
	}

	return networks
}
