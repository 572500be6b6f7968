package abi

import (
	"testing"

	"github.com/lauf-vm/lauf/internal/asm"
)

func sampleTable() *Table {
	return NewTable(
		Library{Prefix: "lauf.bits", Functions: []*Builtin{
			{Name: "and", Sig: asm.Signature{In: 2, Out: 1}},
			{Name: "or", Sig: asm.Signature{In: 2, Out: 1}},
		}},
		Library{Prefix: "", Functions: []*Builtin{
			{Name: "noprefix", Sig: asm.Signature{In: 0, Out: 0}},
		}},
	)
}

func TestTableIndexAndAt(t *testing.T) {
	tbl := sampleTable()

	idx, ok := tbl.Index("lauf.bits.and")
	if !ok {
		t.Fatal("Index(\"lauf.bits.and\") not found")
	}
	if b := tbl.At(idx); b == nil || b.Name != "and" {
		t.Errorf("At(%d) = %v, want the \"and\" builtin", idx, b)
	}

	idx, ok = tbl.Index("noprefix")
	if !ok {
		t.Fatal("Index(\"noprefix\") not found")
	}
	if b := tbl.At(idx); b == nil || b.Name != "noprefix" {
		t.Errorf("At(%d) = %v, want the \"noprefix\" builtin", idx, b)
	}
}

func TestTableIndexUnknownName(t *testing.T) {
	tbl := sampleTable()
	if _, ok := tbl.Index("lauf.bits.nope"); ok {
		t.Error("Index(\"lauf.bits.nope\") found an entry, want ok=false")
	}
}

func TestTableAtOutOfRange(t *testing.T) {
	tbl := sampleTable()
	if b := tbl.At(-1); b != nil {
		t.Errorf("At(-1) = %v, want nil", b)
	}
	if b := tbl.At(int32(len(tbl.entries))); b != nil {
		t.Errorf("At(len) = %v, want nil", b)
	}
}

func TestTableDeclarationOrderIndices(t *testing.T) {
	tbl := sampleTable()
	and, _ := tbl.Index("lauf.bits.and")
	or, _ := tbl.Index("lauf.bits.or")
	noPrefix, _ := tbl.Index("noprefix")
	if !(and < or && or < noPrefix) {
		t.Errorf("indices not in declaration order: and=%d or=%d noprefix=%d", and, or, noPrefix)
	}
}
