package memory

import (
	"errors"
	"math"
	"testing"
)

func TestVectorBlobRoundTrip(t *testing.T) {
	in := []float32{1.5, -2.25, 0, 3.75}
	blob, err := EncodeVector(in)
	if err != nil {
		t.Fatalf("EncodeVector error: %v", err)
	}
	if len(blob) != 4+4*len(in) {
		t.Fatalf("blob length = %d", len(blob))
	}
	out, err := DecodeVector(blob)
	if err != nil {
		t.Fatalf("DecodeVector error: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestVectorBlobRejectsBadInput(t *testing.T) {
	if _, err := EncodeVector(nil); err == nil {
		t.Error("expected error for empty vector")
	}
	if _, err := EncodeVector([]float32{float32(math.NaN())}); err == nil {
		t.Error("expected error for NaN")
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short blob")
	}
	// header declares two values, payload holds one
	_, err := DecodeVector([]byte{2, 0, 0, 0, 0, 0, 0x80, 0x3f})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestPGVectorLiteral(t *testing.T) {
	v := []float32{0.5, -1, 2.25}
	lit := FormatPGVector(v)
	if lit != "[0.5,-1,2.25]" {
		t.Fatalf("FormatPGVector = %q", lit)
	}
	back, err := ParsePGVector(lit)
	if err != nil {
		t.Fatalf("ParsePGVector error: %v", err)
	}
	for i := range v {
		if back[i] != v[i] {
			t.Fatalf("back[%d] = %v, want %v", i, back[i], v[i])
		}
	}
	for _, bad := range []string{"", "[]", "0.1,0.2", "[a,b]"} {
		if _, err := ParsePGVector(bad); err == nil {
			t.Errorf("ParsePGVector(%q) should fail", bad)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mismatch err = %v", err)
	}
	if _, err := CosineSimilarity([]float32{0, 0}, []float32{1, 2}); !errors.Is(err, ErrZeroNorm) {
		t.Errorf("zero norm err = %v", err)
	}
}
