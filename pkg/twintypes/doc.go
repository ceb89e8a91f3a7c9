// Package twintypes defines the core data structures and collaborator interfaces shared
// across the digital twin backend.
//
// # Package Organization
//
// ## Conversation Types (conversation_types.go)
//
//   - Record: one role/content/timestamp entry of a session's history
//   - Evaluation: the transient accept/reject judgment produced for a draft reply
//
// ## Persona Types (persona_types.go)
//
//   - Persona: the immutable identity and background material the twin represents
//   - Fact: one structured key/value professional fact
//
// ## Turn Types (turn_types.go)
//
//   - TurnState: the stages of the evaluate-and-retry turn state machine
//   - TurnRequest / TurnResult: the input and output of one turn
//
// ## Core Interfaces (core_interfaces.go)
//
//   - ConversationStore: load/save of full session histories
//   - Notifier: outbound owner notifications (with optional attachments)
package twintypes
