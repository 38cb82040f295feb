// Package dispatch is a reliable webhook delivery service.
//
// It accepts inbound event payloads addressed to registered subscriptions,
// persists them, and attempts HTTP delivery to subscriber-supplied target
// URLs with bounded retries, HMAC-SHA256 signed payloads, and a queryable
// delivery history.
//
// The moving parts:
//
//   - Subscriptions register a target URL, a signing secret, and a set of
//     event types. The subscription package manages them; a shared Redis
//     cache keeps the delivery hot path off the database.
//   - Ingest persists a webhook row, then enqueues a deliver task on a
//     durable two-lane queue (deliver + cleanup).
//   - The delivery worker claims tasks, signs and POSTs the payload, records
//     a delivery attempt, and schedules the next retry on a fixed backoff
//     schedule until success, a permanent rejection, or exhaustion.
//   - A retention sweeper purges delivery attempts past the retention window
//     on an hourly cadence.
//
// Delivery is at-least-once: receivers must treat the X-Webhook-Id and
// X-Webhook-Attempt headers as their deduplication key.
package dispatch
