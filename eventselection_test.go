// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitEventModifier(t *testing.T) {
	cases := []struct {
		spec     string
		wantName string
		wantMod  string
	}{
		{"cpu-cycles", "cpu-cycles", ""},
		{"cpu-cycles:u", "cpu-cycles", "u"},
		{"cpu-cycles:uk", "cpu-cycles", "uk"},
		{"sched:sched_switch", "sched:sched_switch", ""},
		{"sched:sched_switch:k", "sched:sched_switch", "k"},
		{"cpu-cycles:", "cpu-cycles:", ""},
	}
	for _, c := range cases {
		name, mod := splitEventModifier(c.spec)
		require.Equal(t, c.wantName, name, "name for %q", c.spec)
		require.Equal(t, c.wantMod, mod, "modifier for %q", c.spec)
	}
}

func TestApplyModifierUserOnly(t *testing.T) {
	var attr EventAttr
	require.NoError(t, applyModifier(&attr, "u"))
	require.True(t, attr.Options.ExcludeKernel)
	require.False(t, attr.Options.ExcludeUser)
}

func TestApplyModifierKernelOnly(t *testing.T) {
	var attr EventAttr
	require.NoError(t, applyModifier(&attr, "k"))
	require.True(t, attr.Options.ExcludeUser)
	require.False(t, attr.Options.ExcludeKernel)
}

func TestApplyModifierRejectsUnknownCharacter(t *testing.T) {
	var attr EventAttr
	require.Error(t, applyModifier(&attr, "x"))
}
