package cleaner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsDiffApply(t *testing.T) {
	p := Params{
		Flags: []string{"a", "b"},
		Vars:  map[string]string{"keep": "1", "drop": "2"},
		Sets:  map[string][]string{"s": {"x", "y"}},
	}

	diff := &ParamsDiff{
		Flags:          []string{"c", "a"},
		Unflags:        []string{"b"},
		Vars:           map[string]string{"new": "3", "keep": "override"},
		Unvars:         []string{"drop"},
		AddToSets:      map[string][]string{"s": {"z", "x"}, "fresh": {"1"}},
		RemoveFromSets: map[string][]string{"s": {"y"}, "missing": {"q"}},
	}
	diff.Apply(&p)

	assert.Equal(t, []string{"a", "c"}, p.Flags)
	assert.Equal(t, map[string]string{"keep": "override", "new": "3"}, p.Vars)
	assert.Equal(t, []string{"x", "z"}, p.Sets["s"])
	assert.Equal(t, []string{"1"}, p.Sets["fresh"])
	assert.NotContains(t, p.Sets, "missing")
}

func TestParamsDiffApplyToEmpty(t *testing.T) {
	var p Params
	(&ParamsDiff{
		Flags:     []string{"f"},
		Vars:      map[string]string{"k": "v"},
		AddToSets: map[string][]string{"s": {"1"}},
	}).Apply(&p)

	assert.True(t, p.HasFlag("f"))
	assert.Equal(t, "v", p.Vars["k"])
	assert.Equal(t, []string{"1"}, p.Set("s"))
}

func TestNilDiffIsNoop(t *testing.T) {
	p := Params{Flags: []string{"a"}}
	var diff *ParamsDiff
	diff.Apply(&p)
	assert.Equal(t, []string{"a"}, p.Flags)
}

func TestParamsCloneIsDeep(t *testing.T) {
	p := Params{
		Flags: []string{"a"},
		Vars:  map[string]string{"k": "v"},
		Sets:  map[string][]string{"s": {"1"}},
	}
	c := p.Clone()
	c.Flags[0] = "changed"
	c.Vars["k"] = "changed"
	c.Sets["s"][0] = "changed"

	assert.Equal(t, "a", p.Flags[0])
	assert.Equal(t, "v", p.Vars["k"])
	assert.Equal(t, "1", p.Sets["s"][0])
}

func TestLoadParamsDiff(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "diff.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flags: [strip_www]\nvars:\n  region: au\n"), 0o644))
	diff, err := LoadParamsDiff(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"strip_www"}, diff.Flags)
	assert.Equal(t, "au", diff.Vars["region"])

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	diff, err = LoadParamsDiff(empty)
	require.NoError(t, err)
	assert.Empty(t, diff.Flags)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("flagz: [x]\n"), 0o644))
	_, err = LoadParamsDiff(bad)
	assert.Error(t, err)

	_, err = LoadParamsDiff(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
