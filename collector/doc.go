// Package collector drives the fetch-normalize-publish loop. A single
// background goroutine polls the configured feed source at a fixed
// cadence, backs off exponentially while the feed is down, and
// publishes each valid batch to the snapshot store. Readers are never
// blocked by an in-flight fetch.
package collector
