package event

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/matheus3301/dialog/internal/identity"
)

// Filter selects events on a relay. Tag filters are keyed by tag name
// without the leading '#'.
type Filter struct {
	IDs     []ID
	Authors []identity.PublicKey
	Kinds   []Kind
	Tags    map[string][]string
	Since   int64
	Until   int64
	Limit   int
}

// WithTag returns a copy of f that also requires tag name to carry one of values.
func (f Filter) WithTag(name string, values ...string) Filter {
	tags := make(map[string][]string, len(f.Tags)+1)
	for k, v := range f.Tags {
		tags[k] = v
	}
	tags[name] = append(slices.Clone(tags[name]), values...)
	f.Tags = tags
	return f
}

// Matches reports whether ev satisfies every populated field of f. Limit is
// not considered.
func (f Filter) Matches(ev *Event) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, ev.ID) {
		return false
	}
	if len(f.Authors) > 0 && !slices.Contains(f.Authors, ev.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Since > 0 && ev.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && ev.CreatedAt > f.Until {
		return false
	}
	for name, want := range f.Tags {
		if len(want) == 0 {
			continue
		}
		found := false
		for _, v := range ev.TagValues(name) {
			if slices.Contains(want, v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MarshalJSON renders the relay wire form, with tag filters as "#name" keys.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		m["#"+name] = values
	}
	if f.Since > 0 {
		m["since"] = f.Since
	}
	if f.Until > 0 {
		m["until"] = f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Filter{}
	for key, val := range raw {
		var err error
		switch {
		case key == "ids":
			err = json.Unmarshal(val, &f.IDs)
		case key == "authors":
			err = json.Unmarshal(val, &f.Authors)
		case key == "kinds":
			err = json.Unmarshal(val, &f.Kinds)
		case key == "since":
			err = json.Unmarshal(val, &f.Since)
		case key == "until":
			err = json.Unmarshal(val, &f.Until)
		case key == "limit":
			err = json.Unmarshal(val, &f.Limit)
		case strings.HasPrefix(key, "#") && len(key) > 1:
			var values []string
			err = json.Unmarshal(val, &values)
			if f.Tags == nil {
				f.Tags = map[string][]string{}
			}
			f.Tags[key[1:]] = values
		}
		if err != nil {
			return fmt.Errorf("filter field %q: %w", key, err)
		}
	}
	return nil
}
