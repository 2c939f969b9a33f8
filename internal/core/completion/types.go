package completion

// Type represents the completion backend type.
type Type string

const (
	// TypeOpenAI streams chat completions from an OpenAI-compatible API.
	TypeOpenAI Type = "openai"
	// TypeHTTP streams a chunked text/plain body from a plain HTTP endpoint.
	TypeHTTP Type = "http"
)
