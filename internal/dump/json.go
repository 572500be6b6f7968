package dump

import (
	"github.com/segmentio/encoding/json"
	"golang.org/x/crypto/blake2b"

	"github.com/lauf-vm/lauf/internal/asm"
)

// JSONFunction is one function's machine-readable dump row.
type JSONFunction struct {
	Name       string `json:"name"`
	Signature  string `json:"signature"`
	Exported   bool   `json:"exported"`
	Declared   bool   `json:"declared"`
	Text       string `json:"text"`
	MaxVstack  int    `json:"max_vstack"`
	MaxCstack  int    `json:"max_cstack"`
}

// JSONGlobal is one global's machine-readable dump row.
type JSONGlobal struct {
	Index int    `json:"index"`
	Size  uint64 `json:"size"`
	Perms string `json:"perms"`
}

// JSONModule is the top-level shape written by ModuleJSON.
type JSONModule struct {
	Name      string         `json:"name"`
	Checksum  string         `json:"checksum"`
	Globals   []JSONGlobal   `json:"globals"`
	Functions []JSONFunction `json:"functions"`
}

// ModuleJSON renders mod as a JSON document via segmentio/encoding/json,
// the dumper's allocation-lean drop-in for encoding/json used only for
// this diagnostic output path, never the hot execution loop. Checksum is
// a blake2b-256 hash over the module's textual dump: a diagnostic label
// letting two runs confirm they dumped the same module byte-for-byte, not
// a load format (this VM has no persistent module serialization).
func ModuleJSON(mod *asm.Module, opts Options) ([]byte, error) {
	text := Module(mod, opts)
	sum := blake2b.Sum256([]byte(text))

	out := JSONModule{
		Name:     mod.Name,
		Checksum: hexString(sum[:]),
	}
	for _, g := range mod.Globals() {
		perm := "const"
		if g.Perms == asm.ReadWrite {
			perm = "mut"
		}
		out.Globals = append(out.Globals, JSONGlobal{Index: g.Index, Size: g.Size, Perms: perm})
	}
	for _, fn := range mod.Functions() {
		out.Functions = append(out.Functions, JSONFunction{
			Name:      fn.Name,
			Signature: fn.Sig.String(),
			Exported:  fn.Exported,
			Declared:  fn.Declared,
			Text:      functionText(mod, fn, opts),
			MaxVstack: fn.MaxVstack,
			MaxCstack: fn.MaxCstack,
		})
	}
	return json.Marshal(out)
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0xF]
	}
	return string(out)
}
