// Package gather models the Power PMAC gather (telemetry capture) buffers:
// the type-code vocabulary describing each captured channel, and read-only
// sources exposing the two independent buffer sets ("servo" and "phase")
// that the controller's real-time process fills.
//
// A Source is a best-effort view: the real-time writer updates the
// underlying memory with no locking, so two reads may observe different
// counts or contents. Consumers take whatever values are current at call
// time and never cache across calls. Implementations must guarantee only
// that reads are bounds-checked, never that they are consistent with a
// concurrent writer.
//
// Two implementations are provided: MemSource, a process-local source used
// by tests and anything that stages its own captures, and Region, a
// memory-mapped view of the shared gather region maintained by the
// data-collection process on the controller.
package gather
