package types

// StorageChanged is the envelope type posted by the storage proxy
const StorageChanged = "storageChanged"

// Envelope is the sandbox-to-host message shape
type Envelope struct {
	Type string   `json:"type"`
	Data Snapshot `json:"data"`
}

// ParseEnvelope extracts an Envelope from an exported JavaScript message.
// Values that are not objects carrying a string "type" are rejected.
func ParseEnvelope(msg interface{}) (Envelope, bool) {
	obj, ok := msg.(map[string]interface{})
	if !ok {
		return Envelope{}, false
	}
	kind, ok := obj["type"].(string)
	if !ok {
		return Envelope{}, false
	}
	return Envelope{Type: kind, Data: Normalize(obj["data"])}, true
}
