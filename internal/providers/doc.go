// Package providers adapts each supported model backend to the [Provider]
// interface.
//
// Supported backends: Anthropic (Claude), OpenAI (GPT), Google (Gemini), and
// Ollama / LM Studio for local models. Anthropic, OpenAI and Gemini use their
// vendor SDKs with SDK-level retries disabled; Ollama speaks the
// OpenAI-compatible chat endpoint over plain HTTP.
//
// A provider performs exactly one upstream request per call. Non-2xx
// responses surface as [*APIError] so callers can decide whether to retry
// with [IsTransient].
//
// Use [New] to obtain a Provider by backend name and model string.
package providers
