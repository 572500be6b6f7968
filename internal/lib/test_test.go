package lib

import (
	"testing"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

type fakeAssertHost struct {
	fakeHeapHost
	isolatedMsg     string
	isolatedPanic   bool
	isolatedErr     error
}

func (h *fakeAssertHost) CallIsolated(fn asm.FuncAddr) (string, bool, error) {
	return h.isolatedMsg, h.isolatedPanic, h.isolatedErr
}

func findTestBuiltin(t *testing.T, name string) *abi.Builtin {
	t.Helper()
	for _, b := range Test.Functions {
		if b.Name == name {
			return b
		}
	}
	t.Fatalf("no lauf.test.%s builtin", name)
	return nil
}

func TestTestAssertPasses(t *testing.T) {
	host := &fakeHeapHost{}
	assert := findTestBuiltin(t, "assert")
	if _, err := assert.Fn(host, []asm.Value{asm.NewUint(0)}); err != nil {
		t.Fatalf("assert(0) = %v, want nil", err)
	}
}

func TestTestAssertFails(t *testing.T) {
	host := &fakeHeapHost{}
	assert := findTestBuiltin(t, "assert")
	if _, err := assert.Fn(host, []asm.Value{asm.NewUint(1)}); err == nil {
		t.Fatal("assert(1) = nil error, want a failure panic")
	}
}

func TestTestAssertEq(t *testing.T) {
	host := &fakeHeapHost{}
	assertEq := findTestBuiltin(t, "assert_eq")
	if _, err := assertEq.Fn(host, []asm.Value{asm.NewUint(7), asm.NewUint(7)}); err != nil {
		t.Fatalf("assert_eq(7, 7) = %v, want nil", err)
	}
	if _, err := assertEq.Fn(host, []asm.Value{asm.NewUint(7), asm.NewUint(8)}); err == nil {
		t.Fatal("assert_eq(7, 8) = nil error, want a failure panic")
	}
}

func TestTestUnreachableAlwaysPanics(t *testing.T) {
	host := &fakeHeapHost{}
	unreachable := findTestBuiltin(t, "unreachable")
	if _, err := unreachable.Fn(host, nil); err == nil {
		t.Fatal("unreachable() = nil error, want a panic")
	}
}

func TestTestAssertPanicObservesPanic(t *testing.T) {
	host := &fakeAssertHost{isolatedPanic: true, isolatedMsg: "boom"}
	assertPanic := findTestBuiltin(t, "assert_panic")

	args := []asm.Value{asm.NewAddrValue(asm.NullAddr), asm.NewFuncAddrValue(asm.FuncAddr{})}
	if _, err := assertPanic.Fn(host, args); err != nil {
		t.Fatalf("assert_panic with a null expected-message addr = %v, want nil (no message check)", err)
	}
}

func TestTestAssertPanicFailsWhenTargetDoesNotPanic(t *testing.T) {
	host := &fakeAssertHost{isolatedPanic: false}
	assertPanic := findTestBuiltin(t, "assert_panic")

	args := []asm.Value{asm.NewAddrValue(asm.Addr{}), asm.NewFuncAddrValue(asm.FuncAddr{})}
	if _, err := assertPanic.Fn(host, args); err == nil {
		t.Fatal("assert_panic on a non-panicking target = nil error, want a failure panic")
	}
}

func TestTestAssertPanicRequiresVMProcess(t *testing.T) {
	host := &fakeHeapHost{}
	assertPanic := findTestBuiltin(t, "assert_panic")

	args := []asm.Value{asm.NewAddrValue(asm.Addr{}), asm.NewFuncAddrValue(asm.FuncAddr{})}
	if _, err := assertPanic.Fn(host, args); err == nil {
		t.Fatal("assert_panic against a host without CallIsolated = nil error, want a panic")
	}
}
