// Package safetime provides a trustworthy wall clock for hosts whose local
// clock cannot be trusted. It queries NTP servers in client mode, validates
// each response against defensive sanity rules, and caches the resulting
// clock offset so that Now() answers without a network round-trip.
//
// The service never touches the system clock; it only reports corrected
// millisecond timestamps. Persistence and the monotonic tick counter are
// injected through the CacheStore and TickSource interfaces.
package safetime
