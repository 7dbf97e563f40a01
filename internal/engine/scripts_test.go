package engine

import "testing"

// SHA-1 stability: the protocol treats these hashes as effectively part
// of the wire contract (EVALSHA dispatch keys off them), so a change
// here is a breaking change and must be deliberate.
func TestScriptRegistry_SHA1Stability(t *testing.T) {
	r := scripts()

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"GET", r.get.sha, "5402d90c85de6581e1c572a4815c5df5205163a4"},
		{"SET", r.set.sha, "9ac233c4b91da97fdb1b33d3b75dbd157a0d1d7c"},
		{"DELETE", r.del.sha, "ddbf9c6f31e856fd748724d6336c0d878d0d890b"},
		{"UNLOCK", r.unlock.sha, "8c840b983c65994d22ec2438306b72a6295475b0"},
	}

	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s script sha1 = %s, want %s", c.name, c.got, c.want)
		}
	}
}

func TestScriptRegistry_Lazy_SameInstance(t *testing.T) {
	a := scripts()
	b := scripts()
	if a != b {
		t.Error("scripts() should return the same cached registry across calls")
	}
}
