// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import "testing"

func TestDefaultPrepareRestore(t *testing.T) {
	c := Default()
	if err := c.Prepare(); err != nil {
		t.Fatalf("Prepare() = %v, want nil", err)
	}
	if err := c.Restore(); err != nil {
		t.Fatalf("Restore() = %v, want nil", err)
	}
}

func TestRestoreWithoutPrepareIsSafe(t *testing.T) {
	c := Default()
	if err := c.Restore(); err != nil {
		t.Fatalf("Restore() without Prepare() = %v, want nil", err)
	}
}
