// Package discovery drives repeated scan passes and feeds the device registry.
//
// A pass runs one transport family for a shaped cycle duration, split into
// scan windows separated by shaped pauses. Every sighting is merged into the
// registry as it arrives; new records are announced through Events.
//
// Run cycles until cancelled or until the configured maximum duration. Each
// cycle picks classic with the configured probability (damped by the timing
// engine at higher stealth levels), runs one pass, then sleeps the jittered
// remainder of the interval.
//
// Error policy:
//   - errors wrapping connection.ErrTransportUnavailable end the pass
//   - all other scan errors are transient: logged, backed off, retried
//   - repeated transient failures open a circuit breaker per transport, after
//     which windows are skipped until the breaker half-opens
package discovery
