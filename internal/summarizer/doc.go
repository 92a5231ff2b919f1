// Package summarizer turns ranked alerts into a natural-language answer.
//
// Input is the ordered, model-ready view of a retrieval result. A Summarizer
// backend (OpenAI chat completions) answers from it; Template renders the
// same input without a model and is used whenever the backend fails.
package summarizer
