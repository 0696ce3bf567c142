// Package gatherd is a telemetry server for Power PMAC gather data. The
// motion controller firmware captures servo- and phase-rate samples into a
// shared-memory ring; gatherd maps that region read-only and streams it to
// clients over a small TCP protocol of text commands and length-prefixed
// binary frames.
//
// The repo splits along the data path:
//
//   - gather: type codes, capture sources, and the shared-memory region
//   - wire: frame encoding and the reliable-send primitives
//   - server: the TCP listener and per-connection sessions
//   - client: a native Go client with row/column decoding
//   - relay: optional periodic frame publishing to NATS
//   - cmd/gatherd: the daemon entry point
//
// Supporting packages (config, errors, metric, natsclient) carry the
// ambient concerns.
package gatherd
