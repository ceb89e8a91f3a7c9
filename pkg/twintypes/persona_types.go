package twintypes

import (
	"encoding/json"
	"sort"
)

// Fact is a single structured professional fact about the persona.
type Fact struct {
	Key   string
	Value interface{}
}

// Persona holds the static background material the twin represents.
// A Persona is built once at startup and only read afterwards; all accessors
// return copies so concurrent turns can share a single instance.
type Persona struct {
	name     string
	fullName string
	facts    []Fact
	summary  string
	style    string
	resume   string
	profile  string
}

// NewPersona assembles an immutable persona. Facts are sorted by key so the
// rendered context is stable across loads.
func NewPersona(name, fullName string, facts []Fact, summary, style, resume, profile string) *Persona {
	sorted := make([]Fact, len(facts))
	for i, f := range facts {
		sorted[i] = Fact{Key: f.Key, Value: copyValue(f.Value)}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	return &Persona{
		name:     name,
		fullName: fullName,
		facts:    sorted,
		summary:  summary,
		style:    style,
		resume:   resume,
		profile:  profile,
	}
}

// Name returns the short name the persona goes by.
func (p *Persona) Name() string { return p.name }

// FullName returns the persona's full name.
func (p *Persona) FullName() string { return p.fullName }

// Summary returns the free-text summary notes.
func (p *Persona) Summary() string { return p.summary }

// Style returns the communication-style notes.
func (p *Persona) Style() string { return p.style }

// Resume returns the extracted resume text.
func (p *Persona) Resume() string { return p.resume }

// Profile returns the extracted professional-profile text.
func (p *Persona) Profile() string { return p.profile }

// Facts returns a deep copy of the structured facts, sorted by key.
func (p *Persona) Facts() []Fact {
	out := make([]Fact, len(p.facts))
	for i, f := range p.facts {
		out[i] = Fact{Key: f.Key, Value: copyValue(f.Value)}
	}
	return out
}

// copyValue clones the container shapes produced by the JSON and YAML decoders.
func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[interface{}]interface{}, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// FactsText renders all facts, including name and full name, as canonical JSON.
func (p *Persona) FactsText() string {
	m := make(map[string]interface{}, len(p.facts)+2)
	for _, f := range p.facts {
		m[f.Key] = f.Value
	}
	m["name"] = p.name
	m["full_name"] = p.fullName

	// encoding/json sorts map keys, which keeps the output deterministic
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}
