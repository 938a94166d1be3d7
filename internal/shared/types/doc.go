// Package types provides shared data structures for the applet sync engine.
//
// Core Types:
//   - AppletID: Opaque identifier scoping every server call
//   - Snapshot: Full key-value state visible to sandboxed content
//   - Markers: Last-Modified version markers for storage and content
//   - Envelope: Message shape posted from the sandbox to the host
//
// Example Usage:
//
//	snapshot := types.Normalize(decoded)
//	env, ok := types.ParseEnvelope(msg.Data)
//	if ok && env.Type == types.StorageChanged {
//	    ...
//	}
package types
