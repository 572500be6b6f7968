package pkg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultVMConfig(t *testing.T) {
	c := DefaultVMConfig()
	if c.VM.CstackBytes <= 0 || c.VM.VstackElements <= 0 {
		t.Fatalf("DefaultVMConfig() produced non-positive stack sizes: %+v", c.VM)
	}
	if c.VM.StepLimit != 0 {
		t.Errorf("DefaultVMConfig().VM.StepLimit = %d, want 0 (unlimited)", c.VM.StepLimit)
	}
	if c.Heap.PageBytes <= 0 {
		t.Errorf("DefaultVMConfig().Heap.PageBytes = %d, want > 0", c.Heap.PageBytes)
	}
}

func TestLoadVMConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lauf.toml")
	content := "[vm]\nstep_limit = 1000\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := LoadVMConfig(path)
	if err != nil {
		t.Fatalf("LoadVMConfig() = %v", err)
	}
	if c.VM.StepLimit != 1000 {
		t.Errorf("c.VM.StepLimit = %d, want 1000", c.VM.StepLimit)
	}
	// Fields the file never mentions fall back to the defaults.
	if c.VM.CstackBytes != DefaultVMConfig().VM.CstackBytes {
		t.Errorf("c.VM.CstackBytes = %d, want the default", c.VM.CstackBytes)
	}
}

func TestLoadVMConfigMissingFile(t *testing.T) {
	if _, err := LoadVMConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("LoadVMConfig() on a missing file = nil error, want one")
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lauf.toml")

	c := DefaultVMConfig()
	c.VM.StepLimit = 42
	if err := c.Save(path); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	loaded, err := LoadVMConfig(path)
	if err != nil {
		t.Fatalf("LoadVMConfig() = %v", err)
	}
	if loaded.VM.StepLimit != 42 {
		t.Errorf("loaded.VM.StepLimit = %d, want 42", loaded.VM.StepLimit)
	}
	if loaded.VM.CstackBytes != c.VM.CstackBytes {
		t.Errorf("loaded.VM.CstackBytes = %d, want %d", loaded.VM.CstackBytes, c.VM.CstackBytes)
	}
}

func TestFindConfigFileSearchesAncestors(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	configPath := filepath.Join(root, ConfigFileName)
	if err := os.WriteFile(configPath, []byte("[vm]\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	found := FindConfigFile(filepath.Join(nested, "program.lauf"))
	absConfig, _ := filepath.Abs(configPath)
	if found != absConfig {
		t.Errorf("FindConfigFile() = %q, want %q", found, absConfig)
	}
}

func TestFindConfigFileNoneFound(t *testing.T) {
	dir := t.TempDir()
	if found := FindConfigFile(dir); found != "" {
		t.Errorf("FindConfigFile() = %q, want \"\" (no lauf.toml anywhere above a clean temp dir)", found)
	}
}
