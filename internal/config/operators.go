package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Operator feed kinds.
const (
	KindWebsocket = "websocket"
	KindPoll      = "poll"
)

// TopicSpec is one subscription on a websocket feed.
type TopicSpec struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}

// OperatorSpec describes one book: which adapter decodes it and where
// its feed lives.
type OperatorSpec struct {
	Name    string `yaml:"name"`
	Adapter string `yaml:"adapter"` // registry key; defaults to Name
	Kind    string `yaml:"kind"`   // websocket or poll

	// Websocket feeds
	URL     string      `yaml:"url"`
	AuthURL string      `yaml:"auth_url"`
	Topics  []TopicSpec `yaml:"topics"`

	// Polled feeds
	URLs        []string `yaml:"urls"`
	IntervalSec int      `yaml:"interval_sec"`
}

func (o OperatorSpec) AdapterName() string {
	if o.Adapter != "" {
		return o.Adapter
	}
	return o.Name
}

func (o OperatorSpec) PollInterval() time.Duration {
	if o.IntervalSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(o.IntervalSec) * time.Second
}

type Operators struct {
	Operators []OperatorSpec `yaml:"operators"`
}

// LoadOperators reads and validates the operator roster.
func LoadOperators(path string) (Operators, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Operators{}, fmt.Errorf("read operators: %w", err)
	}

	var ops Operators
	if err := yaml.Unmarshal(data, &ops); err != nil {
		return Operators{}, fmt.Errorf("parse operators: %w", err)
	}

	seen := make(map[string]bool)
	for i, op := range ops.Operators {
		if op.Name == "" {
			return Operators{}, fmt.Errorf("operator %d: missing name", i)
		}
		if seen[op.Name] {
			return Operators{}, fmt.Errorf("operator %q: duplicate entry", op.Name)
		}
		seen[op.Name] = true

		switch op.Kind {
		case KindWebsocket:
			if op.URL == "" {
				return Operators{}, fmt.Errorf("operator %q: websocket feed needs url", op.Name)
			}
			if len(op.Topics) == 0 {
				return Operators{}, fmt.Errorf("operator %q: websocket feed needs topics", op.Name)
			}
		case KindPoll:
			if len(op.URLs) == 0 {
				return Operators{}, fmt.Errorf("operator %q: polled feed needs urls", op.Name)
			}
		default:
			return Operators{}, fmt.Errorf("operator %q: unknown kind %q", op.Name, op.Kind)
		}
	}
	return ops, nil
}
