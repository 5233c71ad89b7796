package cleaner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Params are the tunable inputs rules consult: boolean flags, string vars,
// and named string sets.
type Params struct {
	Flags []string            `yaml:"flags,omitempty" json:"flags,omitempty"`
	Vars  map[string]string   `yaml:"vars,omitempty" json:"vars,omitempty"`
	Sets  map[string][]string `yaml:"sets,omitempty" json:"sets,omitempty"`
}

// HasFlag reports whether flag name is set.
func (p Params) HasFlag(name string) bool {
	return slices.Contains(p.Flags, name)
}

// Set returns the named set, or nil.
func (p Params) Set(name string) []string {
	return p.Sets[name]
}

// Clone returns a deep copy of p.
func (p Params) Clone() Params {
	out := Params{
		Flags: slices.Clone(p.Flags),
		Vars:  maps.Clone(p.Vars),
	}
	if p.Sets != nil {
		out.Sets = make(map[string][]string, len(p.Sets))
		for k, v := range p.Sets {
			out.Sets[k] = slices.Clone(v)
		}
	}
	return out
}

// ParamsDiff is a set of edits to Params. Removals apply before additions.
type ParamsDiff struct {
	Flags          []string            `yaml:"flags,omitempty" json:"flags,omitempty"`
	Unflags        []string            `yaml:"unflags,omitempty" json:"unflags,omitempty"`
	Vars           map[string]string   `yaml:"vars,omitempty" json:"vars,omitempty"`
	Unvars         []string            `yaml:"unvars,omitempty" json:"unvars,omitempty"`
	AddToSets      map[string][]string `yaml:"add_to_sets,omitempty" json:"add_to_sets,omitempty"`
	RemoveFromSets map[string][]string `yaml:"remove_from_sets,omitempty" json:"remove_from_sets,omitempty"`
}

// Apply edits p in place.
func (d *ParamsDiff) Apply(p *Params) {
	if d == nil {
		return
	}

	p.Flags = slices.DeleteFunc(p.Flags, func(f string) bool {
		return slices.Contains(d.Unflags, f)
	})
	for _, f := range d.Flags {
		if !slices.Contains(p.Flags, f) {
			p.Flags = append(p.Flags, f)
		}
	}

	for _, name := range d.Unvars {
		delete(p.Vars, name)
	}
	if len(d.Vars) > 0 && p.Vars == nil {
		p.Vars = make(map[string]string, len(d.Vars))
	}
	maps.Copy(p.Vars, d.Vars)

	for name, remove := range d.RemoveFromSets {
		if set, ok := p.Sets[name]; ok {
			p.Sets[name] = slices.DeleteFunc(set, func(v string) bool {
				return slices.Contains(remove, v)
			})
		}
	}
	if len(d.AddToSets) > 0 && p.Sets == nil {
		p.Sets = make(map[string][]string, len(d.AddToSets))
	}
	for name, add := range d.AddToSets {
		set := p.Sets[name]
		for _, v := range add {
			if !slices.Contains(set, v) {
				set = append(set, v)
			}
		}
		p.Sets[name] = set
	}
}

// LoadParamsDiff reads a YAML (or JSON) params diff from path.
func LoadParamsDiff(path string) (*ParamsDiff, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params diff: %w", err)
	}
	var diff ParamsDiff
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&diff); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse params diff %s: %w", path, err)
	}
	return &diff, nil
}
