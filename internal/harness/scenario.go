package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cookieproxy/internal/cookie"
)

// Scenario describes one end-to-end run of a proxy.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Variant selects the proxy: "weak" (storeproxy.Proxy, the default) or
	// "guarded" (storeproxy.UIProxy).
	Variant string `yaml:"variant,omitempty"`

	// Store is "memory" (a Monster is installed, the default) or "absent".
	Store string `yaml:"store,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace after the run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one scenario action. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// Label names the step's callback in the trace; defaults to
	// "<op>-<index>".
	Label string `yaml:"label,omitempty"`

	URL      string `yaml:"url,omitempty"`
	Name     string `yaml:"name,omitempty"`
	Value    string `yaml:"value,omitempty"`
	Domain   string `yaml:"domain,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Creation string `yaml:"creation,omitempty"` // RFC 3339
	Expires  string `yaml:"expires,omitempty"`  // RFC 3339
	Secure   bool   `yaml:"secure,omitempty"`
	HTTPOnly bool   `yaml:"httponly,omitempty"`
	SameSite string `yaml:"samesite,omitempty"`
	Priority string `yaml:"priority,omitempty"`

	// Begin and End bound delete_between (RFC 3339, empty is unbounded).
	Begin string `yaml:"begin,omitempty"`
	End   string `yaml:"end,omitempty"`

	// Repeat issues a set step that many times.
	Repeat int `yaml:"repeat,omitempty"`
}

// Assertion checks the result of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Label selects a trace event (delivered, not_delivered, result,
	// cookie_count).
	Label string `yaml:"label,omitempty"`

	// Labels is the expected delivery order (trace_order).
	Labels []string `yaml:"labels,omitempty"`

	// Op selects events by operation (trace_count).
	Op string `yaml:"op,omitempty"`

	// Count is the expected number (trace_count, cookie_count, pending,
	// store_calls).
	Count int `yaml:"count"`

	// Expect is a subset of the expected result (result).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpSet           = "set"
	OpGetAll        = "get_all"
	OpGetList       = "get_list"
	OpGetLine       = "get_line"
	OpDeleteBetween = "delete_between"
	OpFlush         = "flush"
	OpCloseProxy    = "close_proxy"
	OpDestroyOwner  = "destroy_owner"
	OpBlockStore    = "block_store"
	OpUnblockStore  = "unblock_store"
	OpWait          = "wait"
)

// Assertion types.
const (
	AssertDelivered    = "delivered"
	AssertNotDelivered = "not_delivered"
	AssertTraceOrder   = "trace_order"
	AssertTraceCount   = "trace_count"
	AssertResult       = "result"
	AssertCookieCount  = "cookie_count"
	AssertPending      = "pending"
	AssertStoreCalls   = "store_calls"
)

// Variants and store kinds.
const (
	VariantWeak    = "weak"
	VariantGuarded = "guarded"
	StoreMemory    = "memory"
	StoreAbsent    = "absent"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so "assertion:" vs "assertions:" typos fail loudly.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Variant == "" {
		scenario.Variant = VariantWeak
	}
	if scenario.Store == "" {
		scenario.Store = StoreMemory
	}
	for i := range scenario.Steps {
		if scenario.Steps[i].Label == "" {
			scenario.Steps[i].Label = fmt.Sprintf("%s-%d", scenario.Steps[i].Op, i)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Variant != VariantWeak && s.Variant != VariantGuarded {
		return fmt.Errorf("variant must be %q or %q, got %q", VariantWeak, VariantGuarded, s.Variant)
	}
	if s.Store != StoreMemory && s.Store != StoreAbsent {
		return fmt.Errorf("store must be %q or %q, got %q", StoreMemory, StoreAbsent, s.Store)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	labels := make(map[string]bool)
	blocked, closed := false, false
	for i, step := range s.Steps {
		if labels[step.Label] {
			return fmt.Errorf("steps[%d]: duplicate label %q", i, step.Label)
		}
		labels[step.Label] = true

		if closed && step.issuesRequest() {
			return fmt.Errorf("steps[%d]: %s after close_proxy", i, step.Op)
		}

		switch step.Op {
		case OpSet:
			if _, err := step.details(); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
			if step.Repeat < 0 {
				return fmt.Errorf("steps[%d]: repeat must not be negative", i)
			}
		case OpGetList, OpGetLine:
			if step.URL == "" {
				return fmt.Errorf("steps[%d]: %s requires url", i, step.Op)
			}
		case OpDeleteBetween:
			if _, _, err := step.bounds(); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		case OpBlockStore:
			if blocked {
				return fmt.Errorf("steps[%d]: store is already blocked", i)
			}
			blocked = true
		case OpUnblockStore:
			if !blocked {
				return fmt.Errorf("steps[%d]: store is not blocked", i)
			}
			blocked = false
		case OpWait:
			if blocked {
				return fmt.Errorf("steps[%d]: wait would never finish while the store is blocked", i)
			}
		case OpCloseProxy:
			closed = true
		case OpGetAll, OpFlush, OpDestroyOwner:
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertDelivered, AssertNotDelivered, AssertResult, AssertCookieCount:
			if a.Label == "" {
				return fmt.Errorf("assertions[%d]: %s requires label", i, a.Type)
			}
		case AssertTraceOrder:
			if len(a.Labels) == 0 {
				return fmt.Errorf("assertions[%d]: trace_order requires labels", i)
			}
		case AssertTraceCount:
			if a.Op == "" {
				return fmt.Errorf("assertions[%d]: trace_count requires op", i)
			}
		case AssertPending, AssertStoreCalls:
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}
	return nil
}

func (s Step) issuesRequest() bool {
	switch s.Op {
	case OpSet, OpGetAll, OpGetList, OpGetLine, OpDeleteBetween, OpFlush, OpCloseProxy:
		return true
	}
	return false
}

// details builds the cookie a set step describes.
func (s Step) details() (cookie.Details, error) {
	u, err := parseURL(s.URL)
	if err != nil {
		return cookie.Details{}, err
	}
	d := cookie.Details{
		URL:      u,
		Name:     s.Name,
		Value:    s.Value,
		Domain:   s.Domain,
		Path:     s.Path,
		Secure:   s.Secure,
		HTTPOnly: s.HTTPOnly,
		Priority: cookie.PriorityDefault,
	}
	if d.CreationTime, err = parseTime("creation", s.Creation); err != nil {
		return cookie.Details{}, err
	}
	if d.ExpirationTime, err = parseTime("expires", s.Expires); err != nil {
		return cookie.Details{}, err
	}
	if s.SameSite != "" {
		if d.SameSite, err = cookie.ParseSameSite(s.SameSite); err != nil {
			return cookie.Details{}, err
		}
	}
	if s.Priority != "" {
		if d.Priority, err = cookie.ParsePriority(s.Priority); err != nil {
			return cookie.Details{}, err
		}
	}
	return d, nil
}

func (s Step) bounds() (begin, end time.Time, err error) {
	if begin, err = parseTime("begin", s.Begin); err != nil {
		return
	}
	end, err = parseTime("end", s.End)
	return
}

func parseTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}
