package fingerprint

import "testing"

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	if a != b {
		t.Errorf("Sum not stable: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Sum length = %d, want 64 hex chars", len(a))
	}
	if Sum([]byte("hello")) == Sum([]byte("hello ")) {
		t.Error("Sum collision on different content")
	}
}

func TestCombine_OrderIndependent(t *testing.T) {
	a := Combine(map[string]string{"x.php": "aaa", "y.php": "bbb"})
	b := Combine(map[string]string{"y.php": "bbb", "x.php": "aaa"})
	if a != b {
		t.Errorf("Combine depends on map order: %s != %s", a, b)
	}
}

func TestCombine_SensitiveToContent(t *testing.T) {
	a := Combine(map[string]string{"x.php": "aaa"})
	b := Combine(map[string]string{"x.php": "bbb"})
	if a == b {
		t.Error("Combine ignored a fingerprint change")
	}

	c := Combine(map[string]string{"x.php": "aaa", "y.php": "bbb"})
	if a == c {
		t.Error("Combine ignored an added file")
	}
}

func TestCombine_Empty(t *testing.T) {
	if Combine(nil) != Combine(map[string]string{}) {
		t.Error("nil and empty maps should combine identically")
	}
}
