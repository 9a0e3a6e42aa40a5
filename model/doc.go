// Package model defines the model-provider capability consumed by the agent
// reasoning loop, plus a deterministic mock for tests. Concrete adapters for
// hosted providers live in the anthropic and openai subpackages.
package model
