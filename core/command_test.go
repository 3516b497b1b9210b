package core

import (
	"testing"

	"vserprog/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	handler := func(p *Programmer, cmd protocol.Command) protocol.Response {
		called = true
		return protocol.NopReply{St: protocol.Ack}
	}
	registry.Register(protocol.OpNop, handler)

	cmd, ok := registry.GetCommand(protocol.OpNop)
	if !ok {
		t.Fatal("Failed to retrieve registered command")
	}
	if cmd.Name != "Nop" {
		t.Errorf("Expected command name 'Nop', got '%s'", cmd.Name)
	}

	resp, err := registry.Dispatch(nil, protocol.Nop{})
	if err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}
	if resp.Status() != protocol.Ack {
		t.Errorf("Expected Ack, got %v", resp.Status())
	}

	_, err = registry.Dispatch(nil, protocol.RByte{})
	if !IsNotImplemented(err) {
		t.Errorf("Expected NotImplemented for unregistered opcode, got %v", err)
	}
}

func TestCommandRegistryCount(t *testing.T) {
	registry := NewCommandRegistry()
	nop := func(p *Programmer, cmd protocol.Command) protocol.Response { return protocol.NopReply{} }

	registry.Register(protocol.OpNop, nop)
	registry.Register(protocol.OpSyncNop, nop)
	registry.Register(protocol.OpSyncNop, nop)
	registry.Register(protocol.OpCode(0x30), nop)
	registry.Register(protocol.OpQIface, nil)

	if registry.Count() != 2 {
		t.Errorf("Expected 2 commands, got %d", registry.Count())
	}
	m := registry.CmdMap()
	if !m.Has(protocol.OpNop) || !m.Has(protocol.OpSyncNop) || m.Has(protocol.OpQIface) {
		t.Errorf("Unexpected command map % X", m[:])
	}
	if _, ok := registry.GetCommand(protocol.OpCode(0x30)); ok {
		t.Error("Invalid opcode should not be registered")
	}
}

func TestSerprogRegistry(t *testing.T) {
	registry := newSerprogRegistry()
	if registry.Count() != 13 {
		t.Errorf("Expected 13 handlers in the SPI profile, got %d", registry.Count())
	}
}
