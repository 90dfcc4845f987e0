// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package statemachine

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// ErrInvalidTransition is returned when a transition is not in the table.
var ErrInvalidTransition = errors.New("invalid state transition")

// Event names a trigger that moves a record from one state to another.
type Event string

type transitionKey[T comparable] struct {
	From  T
	Event Event
}

// StateMachine is a transition table for records whose current state lives
// elsewhere (typically a database column). It is safe for concurrent use.
type StateMachine[T comparable] struct {
	mu sync.RWMutex

	initial          T
	validTransitions map[T][]T
	eventTransitions map[transitionKey[T]]T
}

// New creates an empty table.
func New[T comparable]() *StateMachine[T] {
	return &StateMachine[T]{
		validTransitions: make(map[T][]T),
		eventTransitions: make(map[transitionKey[T]]T),
	}
}

// NewWithState creates an empty table whose records start in initial.
func NewWithState[T comparable](initial T) *StateMachine[T] {
	sm := New[T]()
	sm.initial = initial
	return sm
}

// Initial returns the state new records start in.
func (sm *StateMachine[T]) Initial() T {
	return sm.initial
}

// Allow registers valid transitions from a source state.
func (sm *StateMachine[T]) Allow(from T, to ...T) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, target := range to {
		if !slices.Contains(sm.validTransitions[from], target) {
			sm.validTransitions[from] = append(sm.validTransitions[from], target)
		}
	}
	return sm
}

// On registers an event-driven transition; it is also a valid plain transition.
func (sm *StateMachine[T]) On(from T, event Event, to T) *StateMachine[T] {
	sm.mu.Lock()
	sm.eventTransitions[transitionKey[T]{From: from, Event: event}] = to
	sm.mu.Unlock()
	return sm.Allow(from, to)
}

// CanTransition checks if a transition from one state to another is valid.
func (sm *StateMachine[T]) CanTransition(from, to T) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Contains(sm.validTransitions[from], to)
}

// Check returns ErrInvalidTransition when from -> to is not allowed.
func (sm *StateMachine[T]) Check(from, to T) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidTransition, from, to)
	}
	return nil
}

// Fire resolves the target state of event in state from.
func (sm *StateMachine[T]) Fire(from T, event Event) (T, error) {
	sm.mu.RLock()
	to, ok := sm.eventTransitions[transitionKey[T]{From: from, Event: event}]
	sm.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: no transition for event %s in state %v", ErrInvalidTransition, event, from)
	}
	return to, nil
}

// Sources returns every state from which to is reachable in one step.
func (sm *StateMachine[T]) Sources(to T) []T {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var out []T
	for from, targets := range sm.validTransitions {
		if slices.Contains(targets, to) {
			out = append(out, from)
		}
	}
	sort.Slice(out, func(i, j int) bool { return fmt.Sprint(out[i]) < fmt.Sprint(out[j]) })
	return out
}

// ValidNextStates returns all valid next states from the given state.
func (sm *StateMachine[T]) ValidNextStates(from T) []T {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Clone(sm.validTransitions[from])
}

// ToDot exports the table as a Graphviz DOT graph with stable ordering.
func (sm *StateMachine[T]) ToDot(name string) string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	labels := make(map[string][]string)
	for key, to := range sm.eventTransitions {
		edge := fmt.Sprintf("%v|%v", key.From, to)
		labels[edge] = append(labels[edge], string(key.Event))
	}

	var edges []string
	for from, tos := range sm.validTransitions {
		for _, to := range tos {
			edge := fmt.Sprintf("%v|%v", from, to)
			line := fmt.Sprintf("  %q -> %q", fmt.Sprint(from), fmt.Sprint(to))
			if l := labels[edge]; len(l) > 0 {
				sort.Strings(l)
				line += fmt.Sprintf(" [label=%q]", strings.Join(l, ", "))
			}
			edges = append(edges, line+";")
		}
	}
	sort.Strings(edges)

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n  rankdir=LR;\n", name)
	if sm.initial != *new(T) {
		fmt.Fprintf(&b, "  start [shape=point];\n  start -> %q;\n", fmt.Sprint(sm.initial))
	}
	for _, e := range edges {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	b.WriteString("}\n")
	return b.String()
}
