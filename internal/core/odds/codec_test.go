package odds

import (
	"errors"
	"math"
	"testing"
)

func TestAmericanToDecimal(t *testing.T) {
	cases := []struct {
		price int
		want  float64
	}{
		{150, 2.50},
		{-150, 1.67},
		{130, 2.30},
		{100, 2.00},
		{-100, 2.00},
		{-110, 1.91},
		{250, 3.50},
		{-200, 1.50},
		{-300, 1.33},
	}
	for _, c := range cases {
		got, err := AmericanToDecimal(c.price)
		if err != nil {
			t.Errorf("AmericanToDecimal(%d): unexpected error %v", c.price, err)
			continue
		}
		if got != c.want {
			t.Errorf("AmericanToDecimal(%d) = %v, want %v", c.price, got, c.want)
		}
		if got < 1.0 {
			t.Errorf("AmericanToDecimal(%d) = %v, below 1.0", c.price, got)
		}
	}
}

func TestAmericanToDecimalZero(t *testing.T) {
	_, err := AmericanToDecimal(0)
	if !errors.Is(err, ErrMalformedPrice) {
		t.Fatalf("expected ErrMalformedPrice, got %v", err)
	}
}

func TestAmericanToDecimalAlwaysAtLeastOne(t *testing.T) {
	for _, p := range []int{1, -1, 5, -5, 99, -99, 100000, -100000} {
		got, err := AmericanToDecimal(p)
		if err != nil {
			t.Fatalf("AmericanToDecimal(%d): %v", p, err)
		}
		if got < 1.0 {
			t.Errorf("AmericanToDecimal(%d) = %v, below 1.0", p, got)
		}
	}
}

func TestScaledToDecimal(t *testing.T) {
	cases := []struct {
		raw  int
		want float64
	}{
		{1850, 1.85},
		{2300, 2.30},
		{1000, 1.00},
		{1005, 1.00}, // half to even
		{1015, 1.02},
		{12345, 12.34},
	}
	for _, c := range cases {
		got, err := ScaledToDecimal(c.raw, DefaultScale)
		if err != nil {
			t.Fatalf("ScaledToDecimal(%d): %v", c.raw, err)
		}
		if got != c.want {
			t.Errorf("ScaledToDecimal(%d) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestScaledToLine(t *testing.T) {
	cases := []struct {
		raw  int
		want float64
	}{
		{2500, 2.5},
		{-1500, -1.5},
		{500, 0.5},
		{10500, 10.5},
	}
	for _, c := range cases {
		got, err := ScaledToLine(c.raw, DefaultScale)
		if err != nil {
			t.Fatalf("ScaledToLine(%d): %v", c.raw, err)
		}
		if got != c.want {
			t.Errorf("ScaledToLine(%d) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestZeroScale(t *testing.T) {
	if _, err := ScaledToDecimal(1850, 0); !errors.Is(err, ErrMalformedPrice) {
		t.Errorf("ScaledToDecimal zero scale: expected ErrMalformedPrice, got %v", err)
	}
	if _, err := ScaledToLine(2500, 0); !errors.Is(err, ErrMalformedPrice) {
		t.Errorf("ScaledToLine zero scale: expected ErrMalformedPrice, got %v", err)
	}
}

func TestCheckDecimal(t *testing.T) {
	if _, err := CheckDecimal(1.0); err != nil {
		t.Errorf("CheckDecimal(1.0): %v", err)
	}
	if _, err := CheckDecimal(0.95); !errors.Is(err, ErrMalformedPrice) {
		t.Errorf("CheckDecimal(0.95): expected ErrMalformedPrice, got %v", err)
	}
	if _, err := CheckDecimal(math.NaN()); !errors.Is(err, ErrMalformedPrice) {
		t.Errorf("CheckDecimal(NaN): expected ErrMalformedPrice, got %v", err)
	}
}
