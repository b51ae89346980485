// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package lang

import "testing"

var trained = Alt{
	EnUS: "trained",
	FrFR: "entraîné",
	JaJP: "トレーニング済み",
}

func Test(t *testing.T) {
	for lang, expect := range trained {
		Lang = lang
		if s := trained.String(); s != expect {
			t.Fatalf("%q != %q", s, expect)
		}
	}
	Lang = KoKR
	if s := trained.String(); s != trained[EnUS] {
		t.Errorf("fallback %q", s)
	}
	if s := (Alt{}).String(); s != "" {
		t.Errorf("empty %q", s)
	}
}
