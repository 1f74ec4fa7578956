package graphwriter

import (
	"encoding/json"
	"fmt"
)

func encodeMarker(m ApplyMarker) string {
	raw, err := json.Marshal(m)
	if err != nil {
		// ApplyMarker has no unmarshalable fields; this would only fail on
		// a programmer error introducing one.
		panic(fmt.Sprintf("graphwriter: marshal apply marker: %v", err))
	}
	return string(raw)
}

func decodeMarker(raw string) (ApplyMarker, error) {
	var m ApplyMarker
	err := json.Unmarshal([]byte(raw), &m)
	return m, err
}
