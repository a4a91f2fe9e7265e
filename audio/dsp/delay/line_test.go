package delay

import (
	"math"
	"testing"
)

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func TestNewValidation(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for size=0")
	}
	if _, err := ForDuration(1, 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}

	d, err := ForDuration(0.5, 100)
	if err != nil {
		t.Fatal(err)
	}
	if d.MaxDelay() < 50 {
		t.Fatalf("MaxDelay = %g, want >= 50", d.MaxDelay())
	}
}

func TestReadWrite(t *testing.T) {
	d, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 5; i++ {
		d.Write(float64(i))
	}
	for delay, want := range map[int]float64{1: 5, 2: 4, 5: 1, 6: 0} {
		if got := d.Read(delay); got != want {
			t.Errorf("Read(%d) = %v, want %v", delay, got, want)
		}
	}
}

func TestReadWraps(t *testing.T) {
	d, _ := New(4)
	for i := 1; i <= 10; i++ {
		d.Write(float64(i))
	}
	if got := d.Read(1); got != 10 {
		t.Fatalf("Read(1) = %v, want 10", got)
	}
	if got := d.Read(4); got != 7 {
		t.Fatalf("Read(4) = %v, want 7", got)
	}
}

func TestReadFractionalOnRamp(t *testing.T) {
	d, _ := New(32)
	for i := range 20 {
		d.Write(float64(i))
	}
	// Last write was 19; a delay of k reads 20-k. Hermite is exact on a ramp.
	for _, delay := range []float64{2, 3.25, 7.5, 10.75} {
		want := 20 - delay
		if got := d.ReadFractional(delay); !approxEqual(got, want, 1e-12) {
			t.Errorf("ReadFractional(%g) = %v, want %v", delay, got, want)
		}
	}
}

func TestReadFractionalClamps(t *testing.T) {
	d, _ := New(16)
	for i := range 16 {
		d.Write(float64(i))
	}
	if got, want := d.ReadFractional(0), d.Read(1); got != want {
		t.Fatalf("short delay = %v, want %v", got, want)
	}
	if got, want := d.ReadFractional(100), d.ReadFractional(d.MaxDelay()); got != want {
		t.Fatalf("long delay = %v, want %v", got, want)
	}
}

func TestReset(t *testing.T) {
	d, _ := New(4)
	d.Write(1)
	d.Reset()
	for i := 1; i <= 4; i++ {
		if d.Read(i) != 0 {
			t.Fatal("Reset must clear the buffer")
		}
	}
}
