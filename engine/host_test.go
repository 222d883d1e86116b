package engine

import (
	"errors"
	"testing"
	"testing/iotest"
)

func TestProgressSlot(t *testing.T) {
	var s ProgressSlot
	s.Report(10) // no listener, no effect

	var got []int
	uninstall, err := s.Install(func(pct int) { got = append(got, pct) })
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !s.Installed() {
		t.Fatal("listener not installed")
	}

	s.Report(25)
	s.Report(150)
	s.Report(-3)

	if _, err := s.Install(func(int) {}); err == nil {
		t.Error("second Install should fail while a listener is active")
	}

	uninstall()
	uninstall()
	s.Report(90)

	want := []int{25, 100, 0}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if s.Installed() {
		t.Error("listener still installed after uninstall")
	}
}

func TestProgressSlot_StaleUninstall(t *testing.T) {
	var s ProgressSlot
	first, _ := s.Install(func(int) {})
	first()

	called := false
	second, err := s.Install(func(int) { called = true })
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	defer second()

	first()
	s.Report(1)
	if !called {
		t.Error("stale uninstall removed the newer listener")
	}
}

func TestHostFill_Fallback(t *testing.T) {
	h := NewHost(iotest.ErrReader(errors.New("no entropy")))
	buf := make([]byte, 64)
	h.Fill(buf)

	zero := true
	for _, b := range buf {
		if b != 0 {
			zero = false
		}
	}
	if zero {
		t.Error("fallback left buffer zeroed")
	}
}

func TestHostUint64(t *testing.T) {
	h := NewHost(nil)
	if h.Uint64() == 0 && h.Uint64() == 0 {
		t.Error("two zero draws from crypto/rand")
	}
}
