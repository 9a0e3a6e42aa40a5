// Package config loads and validates mission manifests: YAML documents
// declaring the agents, tools and task graph of one mission, resolved into
// the core specs consumed by the graph compiler and the run registry.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/missionmesh/core"
)

// Engine labels select the reasoning strategy applied to a run.
const (
	// EngineReact is the default think / act / observe loop.
	EngineReact = "react"
	// EngineReflect forces a reflection pass on every agent's final answer.
	EngineReflect = "reflect"
)

// Defaults apply to agents that leave the matching field empty.
type Defaults struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Mission is one parsed manifest.
type Mission struct {
	Name        string                    `yaml:"name"`
	Description string                    `yaml:"description"`
	Engine      string                    `yaml:"engine"`
	Defaults    Defaults                  `yaml:"defaults"`
	Agents      map[string]core.AgentSpec `yaml:"agents"`
	Tasks       []core.TaskSpec           `yaml:"tasks"`

	// Path is the resolved absolute manifest path, used to collapse
	// duplicate submissions of the same mission.
	Path string `yaml:"-"`
}

// Load reads and validates a mission manifest. The returned mission carries
// the resolved absolute path of the file.
func Load(path string) (*Mission, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read mission manifest: %w", err)
	}

	return Parse(raw, resolved)
}

// Parse decodes a manifest from bytes. path is recorded as the mission's
// identity for duplicate collapsing and may be empty for inline manifests.
func Parse(raw []byte, path string) (*Mission, error) {
	var m Mission
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse mission manifest: %w", err)
	}
	m.Path = path

	if m.Engine == "" {
		m.Engine = EngineReact
	}
	for name, a := range m.Agents {
		if a.Name == "" {
			a.Name = name
		}
		if a.Provider == "" {
			a.Provider = m.Defaults.Provider
		}
		if a.Model == "" {
			a.Model = m.Defaults.Model
		}
		m.Agents[name] = a
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Mission) validate() error {
	if m.Name == "" {
		return fmt.Errorf("mission manifest needs a name")
	}
	if len(m.Tasks) == 0 {
		return fmt.Errorf("mission %q declares no tasks", m.Name)
	}
	if m.Engine != EngineReact && m.Engine != EngineReflect {
		return fmt.Errorf("mission %q: unknown engine %q", m.Name, m.Engine)
	}

	for _, t := range m.Tasks {
		if t.ID == "" {
			return fmt.Errorf("mission %q: task without id", m.Name)
		}
		switch t.Kind() {
		case core.TaskTypeAgent:
			if _, ok := m.Agents[t.Agent]; !ok {
				return fmt.Errorf("mission %q: task %q references unknown agent %q", m.Name, t.ID, t.Agent)
			}
		case core.TaskTypeTool:
			if t.Tool == "" {
				return fmt.Errorf("mission %q: tool task %q names no tool", m.Name, t.ID)
			}
		case core.TaskTypeInput:
			if t.UI == nil || len(t.UI.Fields) == 0 {
				return fmt.Errorf("mission %q: input task %q declares no fields", m.Name, t.ID)
			}
		default:
			return fmt.Errorf("mission %q: task %q has unknown type %q", m.Name, t.ID, t.Type)
		}
	}
	return nil
}

// AgentSpecs returns the agent specs with the engine choice applied: the
// reflect engine enables reflection on every agent.
func (m *Mission) AgentSpecs(engine string) []core.AgentSpec {
	if engine == "" {
		engine = m.Engine
	}
	out := make([]core.AgentSpec, 0, len(m.Agents))
	for _, a := range m.Agents {
		if engine == EngineReflect {
			a.Planning.Reflection = true
		}
		out = append(out, a)
	}
	return out
}
