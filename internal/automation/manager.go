package automation

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Manager compiles and caches CEL expression conditions.
// Thread-safe for concurrent evaluation (RWMutex); compilation happens at
// rule-write time so the hot path only ever takes the read lock.
type Manager struct {
	env      *cel.Env
	programs map[string]cel.Program // ruleID -> compiled program
	mu       sync.RWMutex
}

// NewManager creates a Manager with the inbound payload bound as a dynamic
// `payload` variable. Payloads carry no fixed schema, so static typing
// beyond dyn is not possible here.
func NewManager() (*Manager, error) {
	env, err := cel.NewEnv(
		cel.Variable("payload", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Manager{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile compiles a rule's expression condition and caches the program.
// The cost limit bounds runaway expressions from endpoint owners.
func (m *Manager) Compile(ruleID, expression string) error {
	ast, issues := m.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := m.env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return fmt.Errorf("program creation error: %w", err)
	}

	m.mu.Lock()
	m.programs[ruleID] = prog
	m.mu.Unlock()

	return nil
}

// Check compiles an expression without caching the program. Write paths
// validate with Check first and call Compile only after the rule is
// persisted, so a failed write never leaves a cached program the store
// does not back.
func (m *Manager) Check(expression string) error {
	ast, issues := m.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile error: %w", issues.Err())
	}
	if _, err := m.env.Program(ast, cel.CostLimit(1000000)); err != nil {
		return fmt.Errorf("program creation error: %w", err)
	}
	return nil
}

// CompileRules compiles the expression conditions of all given rules,
// skipping rules without one. The first compile error aborts, so callers can
// reject a bad rule set atomically at load or write time.
func (m *Manager) CompileRules(rules []*Rule) error {
	for _, rule := range rules {
		if rule.Expression == "" {
			continue
		}
		if err := m.Compile(rule.ID, rule.Expression); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
		}
	}
	return nil
}

// Remove drops a rule's compiled program, if any.
func (m *Manager) Remove(ruleID string) {
	m.mu.Lock()
	delete(m.programs, ruleID)
	m.mu.Unlock()
}

// Evaluate runs a rule's compiled expression condition against a payload.
// Non-boolean results are treated as false.
func (m *Manager) Evaluate(ruleID string, payload map[string]any) (bool, error) {
	m.mu.RLock()
	prog, exists := m.programs[ruleID]
	m.mu.RUnlock()

	if !exists {
		return false, fmt.Errorf("rule %s is not compiled", ruleID)
	}

	out, _, err := prog.Eval(map[string]any{"payload": payload})
	if err != nil {
		return false, err
	}

	matched, _ := out.Value().(bool)
	return matched, nil
}
