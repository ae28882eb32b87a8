// Package conversation is the orchestration core of care-gateway.
//
// # Overview
//
// The conversation package sits between the HTTP handlers and the
// external capabilities (store, WhatsApp, AI), sequencing everything that
// happens to a patient conversation.
//
// # Service
//
// The Service coordinates conversation operations:
//
//	svc := conversation.New(store, registry, detector, sender, policy, summarizer, logger)
//
// Key operations:
//
//   - Ingest(ctx, address, text): process one inbound patient message,
//     including alert detection, persistence, fan-out and the gated
//     auto-reply tail
//   - SendProfessionalReply(ctx, patientID, text): human-authored reply
//   - AssumeControl / ReleaseControl: the two-state control handoff
//   - ReadConversation(ctx, patientID): history read that clears alerts
//   - Summarize(ctx, patientID): AI clinical summary
//
// # Ordering and durability
//
// A message is always persisted before it is broadcast. Live fan-out is
// an optimization for connected viewers; the store remains the system of
// record, so a viewer that connects late recovers history via
// ReadConversation.
//
// # Registry
//
// The Registry fans persisted messages out to every professional
// currently viewing a patient's conversation. Patient ids are spread over
// sharded locks so unrelated patients never contend, while operations on
// the same patient are mutually ordered.
package conversation
