package embedding

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths: %d %d %d", len(ids), len(attn), len(types))
	}
	if ids[0] != tokenCLS || ids[3] != tokenSEP {
		t.Errorf("framing: %v", ids)
	}
	if !reflect.DeepEqual(attn, []int64{1, 1, 1, 1, 0, 0, 0, 0, 0, 0}) {
		t.Errorf("attention: %v", attn)
	}
}

func TestWordPieceTokenizer(t *testing.T) {
	vocab := map[string]int64{
		"[PAD]": 0, "[UNK]": 100, "[CLS]": 101, "[SEP]": 102,
		"photo": 2000, "##synthesis": 2001, "is": 2002, "fast": 2003, ".": 1012,
	}
	tok := NewWordPieceTokenizer(vocab)
	ids, attn, _ := tok.Tokenize("Photosynthesis is FAST. Zzz", 10)
	want := []int64{101, 2000, 2001, 2002, 2003, 1012, 100, 102, 0, 0}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if attn[7] != 1 || attn[8] != 0 {
		t.Errorf("attention = %v", attn)
	}
}

func TestWordPieceTokenizer_truncates(t *testing.T) {
	tok := NewWordPieceTokenizer(map[string]int64{"a": 5})
	ids, _, _ := tok.Tokenize("a a a a a a a a", 4)
	if !reflect.DeepEqual(ids, []int64{101, 5, 5, 102}) {
		t.Errorf("ids = %v", ids)
	}
}

func TestLoadWordPieceTokenizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte("[PAD]\nmito\n##chondria\n"), 0644); err != nil {
		t.Fatal(err)
	}
	tok, err := LoadWordPieceTokenizer(path)
	if err != nil {
		t.Fatal(err)
	}
	ids, _, _ := tok.Tokenize("mitochondria", 5)
	if ids[1] != 1 || ids[2] != 2 {
		t.Errorf("ids = %v", ids)
	}
	if _, err := LoadWordPieceTokenizer(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing vocabulary")
	}
}

func TestHashString_deterministic(t *testing.T) {
	if HashString("osmosis") != HashString("osmosis") {
		t.Error("hash must be deterministic")
	}
	if HashString("a") < 0 {
		t.Error("hash must be non-negative")
	}
}
