package arena

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	simbridge "github.com/wippyai/simbridge"
	simerrors "github.com/wippyai/simbridge/errors"
	"github.com/wippyai/simbridge/internal/memtest"
)

func TestWriteText(t *testing.T) {
	mem := memtest.New(1, 4)
	a := New(mem, 1024)

	span, err := a.WriteText("As Ks")
	if err != nil {
		t.Fatal(err)
	}
	if span.Offset != 1024 || span.Length != 5 {
		t.Errorf("span = %+v, want {1024 5}", span)
	}
	got, _ := mem.Read(span.Offset, span.Length)
	if string(got) != "As Ks" {
		t.Errorf("memory holds %q", got)
	}

	// Text is unaligned: the next region starts right after.
	next, err := a.WriteText("Qc")
	if err != nil {
		t.Fatal(err)
	}
	if next.Offset != span.End() {
		t.Errorf("next offset = %d, want %d", next.Offset, span.End())
	}

	empty, err := a.WriteText("")
	if err != nil {
		t.Fatal(err)
	}
	if empty.Length != 0 || empty.Offset != next.End() {
		t.Errorf("empty span = %+v", empty)
	}

	// An empty region still owns its offset.
	after, err := a.WriteText("")
	if err != nil {
		t.Fatal(err)
	}
	if after.Offset != empty.Offset+1 {
		t.Errorf("offset after empty span = %d, want %d", after.Offset, empty.Offset+1)
	}
}

func TestReserveAlignment(t *testing.T) {
	a := New(memtest.New(1, 4), 1024)
	if _, err := a.WriteText("abc"); err != nil {
		t.Fatal(err)
	}
	off, err := a.Reserve(5)
	if err != nil {
		t.Fatal(err)
	}
	if off != 1028 {
		t.Errorf("Reserve offset = %d, want 1028", off)
	}
	if a.Offset() != 1028+20 {
		t.Errorf("cursor = %d, want %d", a.Offset(), 1028+20)
	}
}

func TestMonotonicNonOverlapping(t *testing.T) {
	mem := memtest.New(1, 64)
	a := New(mem, 1024)
	rng := rand.New(rand.NewPCG(1, 2))

	var prevEnd uint32 = 1024
	prevStart := -1
	for i := 0; i < 500; i++ {
		var start, end uint32
		if rng.IntN(2) == 0 {
			s := strings.Repeat("x", rng.IntN(300))
			span, err := a.WriteText(s)
			if err != nil {
				t.Fatal(err)
			}
			start, end = span.Offset, span.End()
		} else {
			words := uint32(rng.IntN(400))
			off, err := a.Reserve(words)
			if err != nil {
				t.Fatal(err)
			}
			if off%4 != 0 {
				t.Fatalf("Reserve offset %d not 4-byte aligned", off)
			}
			start, end = off, off+words*4
		}
		if start < prevEnd {
			t.Fatalf("region %d starts at %d, before previous end %d", i, start, prevEnd)
		}
		if int(start) <= prevStart {
			t.Fatalf("region %d offset %d does not increase past %d", i, start, prevStart)
		}
		if end > mem.Size() {
			t.Fatalf("region %d ends at %d beyond memory size %d", i, end, mem.Size())
		}
		prevEnd, prevStart = end, int(start)
	}
	if mem.Grows == 0 {
		t.Error("expected memory to grow")
	}
}

func TestGrowsByWholePages(t *testing.T) {
	mem := memtest.New(1, 8)
	a := New(mem, 1024)

	off, err := a.Reserve(simbridge.PageSize / 4)
	if err != nil {
		t.Fatal(err)
	}
	if off != 1024 {
		t.Errorf("offset = %d", off)
	}
	if mem.Size() != 2*simbridge.PageSize {
		t.Errorf("Size = %d, want two pages", mem.Size())
	}
	if mem.Grows != 1 {
		t.Errorf("grew %d times, want 1", mem.Grows)
	}
}

func TestAllocationFailure(t *testing.T) {
	a := New(memtest.New(1, 1), 1024)
	_, err := a.Reserve(simbridge.PageSize)
	if !errors.Is(err, &simerrors.Error{Kind: simerrors.KindAllocation}) {
		t.Fatalf("err = %v, want allocation failure", err)
	}
	if a.Offset() != 1024 {
		t.Errorf("cursor moved to %d after failed allocation", a.Offset())
	}
}
