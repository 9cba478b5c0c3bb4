package bot

import (
	"encoding/json"
	"strings"
)

type Participant struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	IsHost      bool   `json:"isHost"`
}

// ParticipantsFrom accepts either a typed roster or its decoded-JSON form ([]any of objects).
// Entries without a display name are dropped.
func ParticipantsFrom(v any) []Participant {
	var raw []Participant
	switch t := v.(type) {
	case nil:
		return nil
	case []Participant:
		raw = t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil
		}
	}

	out := make([]Participant, 0, len(raw))
	for _, p := range raw {
		p.DisplayName = strings.TrimSpace(p.DisplayName)
		if p.DisplayName == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
