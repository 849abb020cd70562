// Package armreg provides the ARM register index space shared by the trace
// reader, the verifier and host implementations.
package armreg

import "strings"

// Bank identifies an AArch32 register bank.
type Bank int

const (
	BankUsr Bank = iota
	BankFiq
	BankIrq
	BankSvc
	BankAbt
	BankUnd
	BankMon
	BankHyp
	NumBanks
)

// RegsPerBank is the number of integer registers visible in one bank (r0-r15).
const RegsPerBank = 16

var bankNames = [NumBanks]string{"usr", "fiq", "irq", "svc", "abt", "und", "mon", "hyp"}

func (b Bank) String() string {
	if b < 0 || b >= NumBanks {
		return "unknown"
	}
	return bankNames[b]
}

// ParseBank maps a register name suffix such as "svc" to its bank. Only the
// first three characters are significant, so "svc_ns" parses as svc.
func ParseBank(s string) (Bank, bool) {
	s = strings.ToLower(s)
	if len(s) > 3 {
		s = s[:3]
	}
	for i, name := range bankNames {
		if name == s {
			return Bank(i), true
		}
	}
	return BankUsr, false
}

// IntReg returns the flat integer register index of r<n> in bank b.
func IntReg(b Bank, n int) int {
	return int(b)*RegsPerBank + n
}

// SplitIntReg is the inverse of IntReg.
func SplitIntReg(idx int) (Bank, int) {
	return Bank(idx / RegsPerBank), idx % RegsPerBank
}

const (
	// NumXRegs counts X0-X30 plus the zero register slot.
	NumXRegs = 32
	// SPEL0 is the X index of SP_EL0; SP_ELn lives at SPEL0+n.
	SPEL0 = NumXRegs
)

// SPEL returns the X index of SP_EL<el>.
func SPEL(el int) int {
	return SPEL0 + el
}

// IsLateSettlingIntReg reports whether a flat integer register index is the
// banked link register of an exception mode (r14 outside the usr bank).
// Exception entry writes it after the faulting instruction has retired.
func IsLateSettlingIntReg(idx int) bool {
	bank, n := SplitIntReg(idx)
	return n == 14 && bank != BankUsr && bank < NumBanks
}
