// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workflow defines the declarative workflow/phase types shared by
// the step executor and the content provider. These types are loaded, not
// mutated, by the core: a Definition describes what a workflow looks like;
// it carries no execution state of its own.
package workflow

// Complexity is an informational hint a content provider may attach to a
// Definition; the executor does not branch on it.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityHigh     Complexity = "high"
)

// Phase is one declarative element of a workflow Definition: a named step
// bound to an agent persona. DependsOn is optional dependency metadata
// that only refines which phases are eligible as the *first* phase of an
// execution — v1 progression past the first phase is always sequential
// by list order (see Definition.FirstPhase and Definition.NextPhase).
type Phase struct {
	Phase       string `json:"phase" yaml:"phase"`
	Agent       string `json:"agent" yaml:"agent"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	DependsOn   string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
}

// Definition is a workflow definition as loaded from a ContentProvider: a
// name, descriptive metadata, and an ordered sequence of phases.
type Definition struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Complexity  Complexity `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	Tags        []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Phases      []Phase    `json:"phases" yaml:"phases"`
}

// Agent is a named prompt/persona an external caller uses to perform a
// step's work. The orchestrator never executes agent content itself; it
// only hands the persona back to the caller alongside a continuation
// token.
type Agent struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Content     string `json:"content" yaml:"content"`
}

// Summary is the lightweight projection of a Definition returned by
// list_workflows / the available_workflows resource.
type Summary struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Complexity  Complexity `json:"complexity,omitempty"`
	Phases      []Phase    `json:"phases"`
}

// ToSummary projects d into its Summary form.
func (d *Definition) ToSummary() Summary {
	return Summary{
		Name:        d.Name,
		Description: d.Description,
		Tags:        d.Tags,
		Complexity:  d.Complexity,
		Phases:      d.Phases,
	}
}

// FirstPhase returns the first phase eligible to start an execution: the
// first phase in list order with no DependsOn. Returns false if none
// qualifies (a malformed definition per the start precondition).
func (d *Definition) FirstPhase() (Phase, bool) {
	for _, p := range d.Phases {
		if p.DependsOn == "" {
			return p, true
		}
	}
	return Phase{}, false
}

// IndexOf returns the index of the phase named name, or -1 if absent.
func (d *Definition) IndexOf(name string) int {
	for i, p := range d.Phases {
		if p.Phase == name {
			return i
		}
	}
	return -1
}

// NextPhase implements the v1 phase resolution rule: the next phase is
// the one at index(current)+1 in the ordered phases list. Returns false
// when current is the last phase (the execution should complete).
func (d *Definition) NextPhase(currentName string) (Phase, bool) {
	idx := d.IndexOf(currentName)
	if idx < 0 || idx+1 >= len(d.Phases) {
		return Phase{}, false
	}
	return d.Phases[idx+1], true
}

// AgentFor returns the agent name bound to phaseName, or false if the
// phase is not part of this definition.
func (d *Definition) AgentFor(phaseName string) (string, bool) {
	idx := d.IndexOf(phaseName)
	if idx < 0 {
		return "", false
	}
	return d.Phases[idx].Agent, true
}

// Validate reports whether d satisfies the start precondition: a
// non-empty phases list with at least one phase eligible to start.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errDefinitionMissingName
	}
	if len(d.Phases) == 0 {
		return errDefinitionNoPhases
	}
	if _, ok := d.FirstPhase(); !ok {
		return errDefinitionNoFirstPhase
	}
	seen := make(map[string]bool, len(d.Phases))
	for _, p := range d.Phases {
		if p.Phase == "" || p.Agent == "" {
			return errDefinitionIncompletePhase
		}
		if seen[p.Phase] {
			return errDefinitionDuplicatePhase
		}
		seen[p.Phase] = true
	}
	return nil
}
