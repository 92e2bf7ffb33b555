package embedding

import (
	"context"
	"math"
	"reflect"
	"testing"
)

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "Newton's laws")
	b, _ := e.Embed(ctx, "Newton's laws")
	c, _ := e.Embed(ctx, "Ohm's law")
	if !reflect.DeepEqual(a, b) {
		t.Error("same text must embed identically")
	}
	if reflect.DeepEqual(a, c) {
		t.Error("different texts should differ")
	}
	var sum float64
	for _, v := range a {
		sum += float64(v * v)
	}
	if math.Abs(sum-1) > 1e-4 {
		t.Errorf("embedding not unit length: %v", sum)
	}
	if NewMockEmbedder(0).Dimensions() != 384 {
		t.Error("default dimensions should be 384")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := e.Embed(cancelled, "x"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}
