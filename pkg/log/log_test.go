package log

import "testing"

func TestGetInitializesDefault(t *testing.T) {
	Reset()
	defer Reset()

	logger := Get()
	if logger == nil {
		t.Fatal("Get returned nil logger")
	}
	if logger != Get() {
		t.Fatal("Get is not returning the same global instance")
	}
}

func TestInitReplacesGlobal(t *testing.T) {
	Reset()
	defer Reset()

	before := Get()
	Init(Config{Level: LevelDebug})
	after := Get()
	if before == after {
		t.Fatal("Init did not replace the global logger")
	}
}

func TestMapLevel(t *testing.T) {
	cases := map[Level]string{
		LevelDebug:     "debug",
		LevelInfo:      "info",
		LevelWarn:      "warn",
		LevelError:     "error",
		Level("bogus"): "info",
	}
	for in, want := range cases {
		if got := mapLevel(in).String(); got != want {
			t.Errorf("mapLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
