package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Blob layout: uint32 LE dimension followed by dimension float32 LE values.
const dimHeader = 4

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrZeroNorm          = errors.New("zero vector norm")
)

// EncodeVector packs v into the blob stored by the sqlite archive.
func EncodeVector(v []float32) ([]byte, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("encode vector: empty vector")
	}
	buf := make([]byte, dimHeader+4*len(v))
	binary.LittleEndian.PutUint32(buf, uint32(len(v)))
	for i, f := range v {
		if !finite(f) {
			return nil, fmt.Errorf("encode vector: non-finite value at %d", i)
		}
		binary.LittleEndian.PutUint32(buf[dimHeader+4*i:], math.Float32bits(f))
	}
	return buf, nil
}

func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob) < dimHeader {
		return nil, fmt.Errorf("decode vector: blob too short (%d bytes)", len(blob))
	}
	n := int(binary.LittleEndian.Uint32(blob))
	if n == 0 || len(blob)-dimHeader != 4*n {
		return nil, fmt.Errorf("decode vector: header says %d values, payload has %d bytes: %w", n, len(blob)-dimHeader, ErrDimensionMismatch)
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[dimHeader+4*i:]))
		if !finite(v[i]) {
			return nil, fmt.Errorf("decode vector: non-finite value at %d", i)
		}
	}
	return v, nil
}

// FormatPGVector renders v as a pgvector text literal, e.g. "[0.1,0.2]".
func FormatPGVector(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v) * 10)
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func ParsePGVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("parse vector: malformed literal %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, fmt.Errorf("parse vector: empty vector")
	}
	parts := strings.Split(body, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector: element %d: %w", i, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

// CosineSimilarity returns a score clamped to [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine similarity: %d vs %d: %w", len(a), len(b), ErrDimensionMismatch)
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cosine similarity: empty vector")
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("cosine similarity: %w", ErrZeroNorm)
	}
	score := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(score) {
		return 0, fmt.Errorf("cosine similarity: non-finite input")
	}
	return math.Max(-1, math.Min(1, score)), nil
}

func finite(f float32) bool {
	x := float64(f)
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
