// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"os"
	"path/filepath"
)

// GatewayLevel is a two-level network: a lobby guarded by an interlocked
// watchdog, and a vault holding the download objective.
const GatewayLevel = `
name: gateway
tick_budget: 10
max_ticks: 12
nodes:
  - id: lobby
    type: directory
  - id: notes
    type: readme
    parent: lobby
    description: "fw restarts itself if you stop it. the watchdog sees to that."
  - id: fw
    type: firewall
    parent: lobby
    priority: 2
  - id: watchdog
    type: daemon
    parent: lobby
    priority: 1
    watch: {node: fw, invariant: active}
    restart: {trigger: hook, target: watched, interlock: true}
  - id: vault
    type: directory
    parent: lobby
  - id: payload
    type: recyclable
    parent: vault
    objective: {kind: download, description: "exfiltrate the payload", primary: true}
`

// AlarmLevel has a strong counter-measure that notices the first probe.
const AlarmLevel = `
name: tripwire
tick_budget: 10
max_ticks: 20
nodes:
  - id: fw
    type: firewall
    priority: 1
  - id: sentinel
    type: counter-measure
    analysis_strength: 5
    visibility_threshold: 1
    objective: {kind: download, require_analysis: true, primary: true}
`

// FakeLevel writes a level definition to disk the way an operator would.
type FakeLevel struct {
	Dir  string
	Name string
	Body string
}

// NewFakeLevel creates a new fake level generator.
func NewFakeLevel(dir, name, body string) *FakeLevel {
	return &FakeLevel{Dir: dir, Name: name, Body: body}
}

// Path returns where the level file is written.
func (f *FakeLevel) Path() string {
	return filepath.Join(f.Dir, f.Name+".yaml")
}

// Create writes the level file.
func (f *FakeLevel) Create() error {
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(f.Path(), []byte(f.Body), 0644)
}

// Exists checks if the level file exists.
func (f *FakeLevel) Exists() bool {
	_, err := os.Stat(f.Path())
	return err == nil
}

// Cleanup removes the level file.
func (f *FakeLevel) Cleanup() error {
	return os.Remove(f.Path())
}
