// Package window implements windowing constructs. In the world of data processing on an unbounded stream, Windowing
// is a concept of grouping data using temporal boundaries. We use event-time to discover temporal boundaries on an
// unbounded, infinite stream and Watermark to ensure the datasets within the boundaries are complete. An aggregate
// function can be applied on this group of data.
//
// Windowing is implemented as a two stage process,
//   - Assign windows - assign the event to a window
//   - Close windows - the watermark passing the end of a window triggers its materialization
//
// Fixed windows (sometimes called tumbling windows) are the only strategy implemented today; the interfaces return a
// set of windows per event so overlapping strategies (e.g. Sliding) can be added without changing the callers.
//
// Windows are aligned, i.e. applied across all the data for the window of time in question, and their boundaries are
// aligned to the epoch. A window additionally tracks the set of keys seen within it, because in a keyed stream all the
// per-key partitions of a window have to be closed when the watermark passes the window.
package window
