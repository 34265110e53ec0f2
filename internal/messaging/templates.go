package messaging

import (
	"encoding/json"
	"fmt"

	"stagecall/internal/types"
)

// ParseTemplateMap decodes the MESSAGING_TEMPLATES_JSON value, a JSON
// object mapping message types to provider template IDs. Every message
// type must be present; a job whose type has no template could never be
// delivered, so the gap is a startup error rather than a dispatch-time
// surprise.
func ParseTemplateMap(raw string) (map[types.MessageType]string, error) {
	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("messaging: invalid template map JSON: %w", err)
	}

	templates := make(map[types.MessageType]string, len(decoded))
	for key, id := range decoded {
		mt := types.MessageType(key)
		if !mt.Valid() {
			return nil, fmt.Errorf("messaging: unknown message type %q in template map", key)
		}
		if id == "" {
			return nil, fmt.Errorf("messaging: empty template ID for %s", key)
		}
		templates[mt] = id
	}

	for _, mt := range types.AllMessageTypes {
		if _, ok := templates[mt]; !ok {
			return nil, fmt.Errorf("messaging: template map is missing %s", mt)
		}
	}
	return templates, nil
}
