// Package pkg loads the VM's on-disk configuration file, lauf.toml.
package pkg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFileName is the default VM configuration file name searched for by
// FindConfigFile.
const ConfigFileName = "lauf.toml"

// VMConfig mirrors the fields of lauf_vm_options (spec.md §6's
// create_vm(options{...})): the stack sizes and step limit a host would
// otherwise have to set in code.
type VMConfig struct {
	VM   VMSection   `toml:"vm"`
	Heap HeapSection `toml:"heap"`
}

// VMSection configures the executor's stacks and cooperative step budget.
type VMSection struct {
	// CstackBytes sizes the call-stack arena (frames + local allocations).
	CstackBytes int `toml:"cstack_bytes"`
	// VstackElements sizes the value stack, in 64-bit slots.
	VstackElements int `toml:"vstack_elements"`
	// StepLimit is the initial remaining_steps budget; 0 disables the
	// step-limit check entirely (spec.md §4.4).
	StepLimit uint64 `toml:"step_limit"`
}

// HeapSection configures the page allocator backing heap allocations
// (spec.md §4.4's "Heap & GC").
type HeapSection struct {
	// PageBytes is the chunk size requested from the OS per arena page.
	PageBytes int `toml:"page_bytes"`
}

// DefaultVMConfig is the configuration used when no lauf.toml is present.
// Its [vm] values match runtime.DefaultOptions; its [heap] page_bytes of
// 64 KiB turns on the page allocator, which runtime.DefaultOptions leaves
// off.
func DefaultVMConfig() *VMConfig {
	return &VMConfig{
		VM: VMSection{
			CstackBytes:    1 << 20,
			VstackElements: 4096,
			StepLimit:      0,
		},
		Heap: HeapSection{
			PageBytes: 64 * 1024,
		},
	}
}

// LoadVMConfig reads and parses a lauf.toml file, filling any field the
// file omits with DefaultVMConfig's value.
func LoadVMConfig(path string) (*VMConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultVMConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Save writes the configuration to path as commented TOML.
func (c *VMConfig) Save(path string) error {
	content := generateConfigWithComments(c)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func generateConfigWithComments(c *VMConfig) string {
	var sb strings.Builder

	sb.WriteString("[vm]\n")
	sb.WriteString("# size in bytes of the call-stack arena (frames + local allocations)\n")
	fmt.Fprintf(&sb, "cstack_bytes = %d\n\n", c.VM.CstackBytes)
	sb.WriteString("# size of the value stack, in 64-bit slots\n")
	fmt.Fprintf(&sb, "vstack_elements = %d\n\n", c.VM.VstackElements)
	sb.WriteString("# cooperative step budget; 0 disables the step-limit check\n")
	fmt.Fprintf(&sb, "step_limit = %d\n\n", c.VM.StepLimit)

	sb.WriteString("[heap]\n")
	sb.WriteString("# chunk size requested from the OS per arena page\n")
	fmt.Fprintf(&sb, "page_bytes = %d\n", c.Heap.PageBytes)

	return sb.String()
}

// FindConfigFile searches startPath and its ancestors for lauf.toml,
// returning the first match's full path or "" if none is found. A
// startPath that is not an existing directory (a file, or a path that does
// not exist yet) starts the search at its parent directory.
func FindConfigFile(startPath string) string {
	dir := startPath
	if info, err := os.Stat(startPath); err != nil || !info.IsDir() {
		dir = filepath.Dir(startPath)
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
