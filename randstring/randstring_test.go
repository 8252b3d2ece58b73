package randstring

import (
	"net/url"
	"testing"
)

func TestRandString(t *testing.T) {
	s := RandString(12)
	if len(s) != 12 {
		t.Errorf("Length of generated string %s is incorrect", s)
	}
}

func TestRandStringTwice(t *testing.T) {
	s := RandString(32)
	r := RandString(32)
	if s == r {
		t.Errorf("Calling RandString twice gives the same answer (%s==%s)",
			s, r)
	}
}

func TestRandStringURLSafe(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := RandString(40)
		if url.QueryEscape(s) != s {
			t.Errorf("string %s is not url safe", s)
		}
	}
}

func TestRandStringEmpty(t *testing.T) {
	if s := RandString(0); s != "" {
		t.Errorf("have(%s) want empty string", s)
	}
}
