// Package reasoning adapts external reasoning engines (LLM chat services) to
// a single contract: given a conversation history, the declared action
// schemas and the policy prompt, produce either a final answer or a set of
// requested actions. The package performs no retries and never validates
// action arguments; failures propagate to the caller for classification.
package reasoning
