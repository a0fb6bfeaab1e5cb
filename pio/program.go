package pio

// InstructionMemorySize is the number of instruction slots of a block.
const InstructionMemorySize = 32

// A Program is the behaviour a state machine executes.
//
// A program keeps all of its state in the state machine that runs it (PC,
// scratch registers, shift registers), so that one loaded program can serve
// several state machines of a block.
type Program interface {
	// Name identifies the program. Programs with the same name are loaded
	// into a block only once.
	Name() string

	// Length is the number of instruction slots the program occupies.
	Length() int

	// Step executes the program for one state machine cycle. It returns
	// false when the state machine is stalled, waiting for a pin or a FIFO.
	Step(sm *StateMachine) bool
}
