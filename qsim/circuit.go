// Package qsim provides single-shot simulators for the single-qubit circuits
// used to model a BB84 quantum channel.
package qsim

import (
	"fmt"
	"strings"
)

// A Gate is a single-qubit circuit operation.
type Gate uint8

const (
	GateX Gate = iota + 1
	GateZ
	GateH
	// GateMeasure reads qubit i out into classical bit i.
	GateMeasure
)

func (g Gate) String() string {
	switch g {
	case GateX:
		return "x"
	case GateZ:
		return "z"
	case GateH:
		return "h"
	case GateMeasure:
		return "measure"
	}
	return fmt.Sprintf("gate(%d)", uint8(g))
}

// An Op applies Gate to Qubit.
type Op struct {
	Gate  Gate
	Qubit int
}

// A Circuit is an ordered list of single-qubit operations over Qubits qubits
// and an equally sized classical register.
type Circuit struct {
	Name   string
	Qubits int
	Ops    []Op
}

// NewCircuit returns an empty circuit over the given number of qubits.
func NewCircuit(name string, qubits int) *Circuit {
	return &Circuit{Name: name, Qubits: qubits}
}

func (c *Circuit) X(q int)       { c.Ops = append(c.Ops, Op{GateX, q}) }
func (c *Circuit) Z(q int)       { c.Ops = append(c.Ops, Op{GateZ, q}) }
func (c *Circuit) H(q int)       { c.Ops = append(c.Ops, Op{GateH, q}) }
func (c *Circuit) Measure(q int) { c.Ops = append(c.Ops, Op{GateMeasure, q}) }

// Count returns the number of operations in c using gate g.
func (c *Circuit) Count(g Gate) int {
	var n int
	for _, op := range c.Ops {
		if op.Gate == g {
			n++
		}
	}
	return n
}

// Validate checks that every operation addresses a qubit inside the register
// and uses a known gate.
func (c *Circuit) Validate() error {
	if c.Qubits <= 0 {
		return fmt.Errorf("circuit %q has %d qubits", c.Name, c.Qubits)
	}
	for i, op := range c.Ops {
		if op.Qubit < 0 || op.Qubit >= c.Qubits {
			return fmt.Errorf("op %d (%v) addresses qubit %d of %d", i, op.Gate, op.Qubit, c.Qubits)
		}
		if op.Gate < GateX || op.Gate > GateMeasure {
			return fmt.Errorf("op %d uses unknown %v", i, op.Gate)
		}
	}
	return nil
}

// QASM renders c as an OpenQASM 2.0 program.
func (c *Circuit) QASM() string {
	var sb strings.Builder
	sb.WriteString("OPENQASM 2.0;\n")
	sb.WriteString("include \"qelib1.inc\";\n")
	if c.Name != "" {
		fmt.Fprintf(&sb, "// %s\n", c.Name)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "qreg q[%d];\n", c.Qubits)
	fmt.Fprintf(&sb, "creg c[%d];\n", c.Qubits)
	sb.WriteString("\n")
	for _, op := range c.Ops {
		if op.Gate == GateMeasure {
			fmt.Fprintf(&sb, "measure q[%d] -> c[%d];\n", op.Qubit, op.Qubit)
			continue
		}
		fmt.Fprintf(&sb, "%v q[%d];\n", op.Gate, op.Qubit)
	}
	return sb.String()
}
