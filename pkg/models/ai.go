// Package models contains shared data models used across the mdmdedup codebase.
package models

import (
	"context"
	"time"
)

// AIProvider is the capability every language-model backend exposes.
// Never call specific backends directly; always inject this interface.
type AIProvider interface {
	// Complete sends a prompt and returns the backend's reply as plain text.
	Complete(ctx context.Context, prompt Prompt) (string, error)
	// Name returns the configured provider name (e.g. "azure-primary").
	Name() string
}

// Prompt is a provider-neutral completion request.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
	// JSONMode asks backends that support it to constrain output to a JSON object.
	JSONMode bool
}

// ProviderKind enumerates supported backend kinds.
type ProviderKind string

const (
	ProviderAzure     ProviderKind = "azure"
	ProviderOpenAI    ProviderKind = "openai"
	ProviderGemini    ProviderKind = "gemini"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderVLLM      ProviderKind = "vllm"
	ProviderOllama    ProviderKind = "ollama"
	ProviderMock      ProviderKind = "mock"
)

// ProviderInfo is the externally visible state of a registered provider.
type ProviderInfo struct {
	Name        string       `json:"name"`
	Type        ProviderKind `json:"type"`
	Priority    int          `json:"priority"`
	IsHealthy   bool         `json:"isHealthy"`
	LastChecked *time.Time   `json:"lastChecked,omitempty"`
	ErrorCount  int          `json:"errorCount"`
}

// ProviderStatus is a snapshot of the whole registry.
type ProviderStatus struct {
	CurrentProvider string         `json:"currentProvider"`
	AllProviders    []ProviderInfo `json:"allProviders"`
}
