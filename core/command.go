package core

import (
	"vserprog/protocol"
)

// CommandHandler executes a decoded command and returns its response. It is
// only ever called with the command type registered for its opcode.
type CommandHandler func(p *Programmer, cmd protocol.Command) protocol.Response

// Command is a registered handler for one opcode
type Command struct {
	Op      protocol.OpCode
	Name    string
	Handler CommandHandler
}

// CommandRegistry maps opcodes to handlers. The supported-command bitmap
// advertised by QCmdMap is derived from it, so the two cannot disagree.
type CommandRegistry struct {
	commands [protocol.NumOpCodes]*Command
	cmdMap   protocol.CmdMap
	count    int
}

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{}
}

// Register installs handler for op, replacing any earlier one.
func (r *CommandRegistry) Register(op protocol.OpCode, handler CommandHandler) {
	if !op.Valid() || handler == nil {
		return
	}
	if r.commands[op] == nil {
		r.count++
	}
	r.commands[op] = &Command{
		Op:      op,
		Name:    op.String(),
		Handler: handler,
	}
	r.cmdMap.Set(op)
}

// GetCommand retrieves the handler registered for op
func (r *CommandRegistry) GetCommand(op protocol.OpCode) (*Command, bool) {
	if !op.Valid() || r.commands[op] == nil {
		return nil, false
	}
	return r.commands[op], true
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	return r.count
}

// CmdMap returns the bitmap of registered opcodes.
func (r *CommandRegistry) CmdMap() protocol.CmdMap {
	return r.cmdMap
}

// Dispatch runs the handler for cmd. Opcodes without one yield
// *NotImplementedError and no response.
func (r *CommandRegistry) Dispatch(p *Programmer, cmd protocol.Command) (protocol.Response, error) {
	c, ok := r.GetCommand(cmd.OpCode())
	if !ok {
		return nil, &NotImplementedError{Op: cmd.OpCode()}
	}
	return c.Handler(p, cmd), nil
}
