// Package routing decides which handler receives a support conversation.
//
// # Overview
//
// Admins configure rules that claim conversations for a target handler:
// the AI agent (n1ago), the human queue (human) or the legacy bot (bot).
// There are two kinds of rule:
//
//   - allocate_next_n rules claim brand-new conversations, optionally only
//     from authenticated or unauthenticated customers
//   - transfer_ongoing rules move an in-flight conversation when an inbound
//     message's normalized text equals the rule's matchText
//
// Either kind may carry an allocation cap. Every conversation a rule wins
// consumes one slot, and the rule deactivates itself when the last slot is
// taken. Inactive rules never match again.
//
// # Architecture
//
//	Router ──> Matcher ──> RuleStore.List / RuleStore.TryReserve
//	  │
//	  ├──> Tracker   (optional, de-duplicates redelivered events)
//	  └──> Publisher (optional, decision and exhaustion events)
//
// The Matcher filters a snapshot of active rules and tries them oldest
// first. Only TryReserve mutates state; it is atomic per rule, so a rule
// with cap N is never allocated more than N times no matter how many
// goroutines or processes route concurrently. A candidate that loses the
// race is skipped and the next one is tried.
//
// # Stores
//
// MemoryStore serves tests and single-process deployments. The sqlite and
// postgres packages under internal/storage implement TryReserve as one
// conditional UPDATE and are safe to share between processes.
//
// # Usage
//
//	router := routing.NewRouter(store, tracker, publisher, routing.Options{
//		DefaultTarget: routing.TargetBot,
//	})
//
//	authenticated := true
//	decision, err := router.RouteNewConversation(ctx, routing.NewConversationEvent{
//		ConversationID:  "conv-123",
//		IsAuthenticated: &authenticated,
//	})
//	if err != nil {
//		// store failure: retry or queue, do not drop the event
//	}
//	if !decision.Matched {
//		// decision.Target holds the default, if one is configured
//	}
package routing
