// Package agent connects the chat loop to remote MCP servers.
//
// A Session holds one authenticated Client per configured server and
// aggregates their tools under server-qualified names so the LLM sees a
// single flat tool list. Bearer tokens come from the oauth package; a
// server whose token cannot be obtained is skipped, not fatal.
//
// The REPL drives the conversation: user input goes to the configured LLM
// provider together with the aggregated tools, requested tool calls are
// executed against the owning MCP server, and results are fed back until
// the model produces a final answer.
package agent
