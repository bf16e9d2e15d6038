// Package adapters translates vendor payload shapes into normalized
// model mutations. One implementation per operator, selected by
// configuration at startup — never by sniffing payload content.
package adapters

import (
	"errors"
	"fmt"

	"github.com/calebward/oddsfeed/internal/core/model"
)

// Adapter converts one operator's raw JSON into match updates.
//
// Implementations must tolerate missing optional fields by skipping the
// affected entity and continuing (partial-failure isolation at entity
// granularity), and must run every vendor price through the odds codec
// before it reaches the model.
type Adapter interface {
	Operator() string
	Translate(raw []byte) ([]model.MatchUpdate, error)

	// Forget drops any announcement bookkeeping for a match id, so the
	// next sighting is translated as a fresh create. The ingestion
	// pipeline calls this when it evicts a match the adapter already
	// announced.
	Forget(matchID string)
}

// ErrUnknownOperator is returned when configuration names an operator
// no adapter is registered for.
var ErrUnknownOperator = errors.New("unknown operator")

type factory func() Adapter

var registry = map[string]factory{}

// Register makes an adapter constructor available under its operator
// name. Called from adapter package init functions.
func Register(name string, f func() Adapter) {
	registry[name] = f
}

// New constructs the adapter registered for the named operator.
func New(name string) (Adapter, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, name)
	}
	return f(), nil
}

// Registered lists the operator names with a registered adapter.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
