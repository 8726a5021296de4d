package spk

import (
	"bytes"
	"encoding/json"

	"gopkg.in/ini.v1"
)

// orderedPairs preserves a section's keys in file-declaration order, and
// orderedSections below does the same for the INI file's sections, since
// spec.md §9 requires the re-encoding to be bit-for-bit reproducible,
// which a plain Go map (random iteration order) cannot provide.
type orderedPairs []pair

type pair struct {
	key   string
	value string
}

// MarshalJSON writes `{"k1":"v1","k2":"v2"}` with no inserted whitespace,
// in insertion order, matching spec.md §9's "compact JSON without
// whitespace between tokens".
func (p orderedPairs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type orderedSections struct {
	names    []string
	sections map[string]orderedPairs
}

func (s orderedSections) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s.sections[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// iniToJSON parses the INI text in data and re-encodes it as
// `{section: {key: value, ...}}`, preserving the file's section and key
// order, per spec.md §9.
func iniToJSON(data []byte) (string, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowNonUniqueSections: false}, data)
	if err != nil {
		return "", err
	}

	out := orderedSections{sections: map[string]orderedPairs{}}
	for _, section := range f.Sections() {
		name := section.Name()
		if name == ini.DefaultSection && len(section.Keys()) == 0 {
			continue
		}
		out.names = append(out.names, name)
		var pairs orderedPairs
		for _, key := range section.Keys() {
			pairs = append(pairs, pair{key: key.Name(), value: key.Value()})
		}
		out.sections[name] = pairs
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
