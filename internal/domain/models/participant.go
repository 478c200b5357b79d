package models

import "encoding/json"

// ParticipantInfo describes the human on the user side of a session.
// Unknown fields sent by a client are preserved in Extra.
type ParticipantInfo struct {
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name,omitempty"`
	Email  string         `json:"email,omitempty"`
	Phone  string         `json:"phone,omitempty"`
	Locale string         `json:"locale,omitempty"`
	Extra  map[string]any `json:"-"`
}

var participantKnownFields = map[string]struct{}{
	"id": {}, "name": {}, "email": {}, "phone": {}, "locale": {},
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (p *ParticipantInfo) UnmarshalJSON(data []byte) error {
	type known ParticipantInfo
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for key := range participantKnownFields {
		delete(all, key)
	}

	*p = ParticipantInfo(k)
	if len(all) > 0 {
		p.Extra = all
	}
	return nil
}

// MarshalJSON flattens Extra next to the known fields.
func (p ParticipantInfo) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+5)
	for k, v := range p.Extra {
		out[k] = v
	}
	set := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	set("id", p.ID)
	set("name", p.Name)
	set("email", p.Email)
	set("phone", p.Phone)
	set("locale", p.Locale)
	return json.Marshal(out)
}

// Clone returns a deep enough copy for handing out of a lock.
func (p *ParticipantInfo) Clone() *ParticipantInfo {
	if p == nil {
		return nil
	}
	c := *p
	if p.Extra != nil {
		c.Extra = make(map[string]any, len(p.Extra))
		for k, v := range p.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}
