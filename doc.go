// Package members manages the identity and credential lifecycle for a
// learning application: self-service guest accounts identified by year-scoped
// sequential member numbers, member-number + password authentication, password
// rotation, and scheduled reclamation of expired guests.
//
// Member numbers:
//   - Numbers follow the YYNNNNNN format: a two digit year prefix and a six
//     digit zero-padded sequence. The Allocator hands out strictly increasing,
//     gap-free sequences per prefix by running the increment inside a
//     serializable transaction against a shared counter row, retrying on
//     conflict, so concurrent guest creation never collides.
//
// Credentials:
//   - Guests start on a system-generated all-digit temporary password and are
//     flagged with ForcePasswordChange until they rotate to a permanent one.
//     Hashing is bcrypt with a cost that is configured, not hard-coded, so the
//     per-attempt CPU price can be tuned without a deploy.
//
// Event sinks:
//   - EventSink is a light-weight lifecycle emitter used by the Service, the
//     state machine, and the Sweeper to describe creation, login, password
//     change, and expiry events. The bundled Recorder dispatches them to the
//     analytics store from a bounded queue, best-effort, so an analytics
//     outage never fails an auth operation.
package members
