package armreg

import (
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

// MiscReg is the index of a miscellaneous (system) register.
type MiscReg int

// The ordering below defines the index space; hosts use the same constants.
const (
	MiscCPSR MiscReg = iota
	MiscSPSR
	MiscSPSRFiq
	MiscSPSRIrq
	MiscSPSRSvc
	MiscSPSRMon
	MiscSPSRAbt
	MiscSPSRHyp
	MiscSPSRUnd
	MiscELRHyp
	MiscFPSID
	MiscFPSCR
	MiscMVFR0
	MiscMVFR1
	MiscFPEXC
	MiscSCTLR
	MiscACTLR
	MiscCPACR
	MiscTTBR0
	MiscTTBR1
	MiscTTBCR
	MiscDACR
	MiscDFSR
	MiscIFSR
	MiscDFAR
	MiscIFAR
	MiscVBAR
	MiscMVBAR
	MiscCONTEXTIDR
	MiscTPIDRURW
	MiscTPIDRURO
	MiscTPIDRPRW
	MiscMIDR
	MiscMPIDR
	MiscNZCV
	MiscDAIF
	MiscCurrentEL
	MiscFPCR
	MiscFPSR
	MiscELREL1
	MiscELREL2
	MiscELREL3
	MiscSPSREL1
	MiscSPSREL2
	MiscSPSREL3
	MiscESREL1
	MiscESREL2
	MiscESREL3
	MiscFAREL1
	MiscFAREL2
	MiscFAREL3
	MiscSCTLREL1
	MiscSCTLREL2
	MiscSCTLREL3
	MiscACTLREL1
	MiscACTLREL2
	MiscACTLREL3
	MiscTCREL1
	MiscTCREL2
	MiscTCREL3
	MiscTTBR0EL1
	MiscTTBR0EL2
	MiscTTBR0EL3
	MiscTTBR1EL1
	MiscMAIREL1
	MiscMAIREL2
	MiscMAIREL3
	MiscAMAIREL1
	MiscVBAREL1
	MiscVBAREL2
	MiscVBAREL3
	MiscTPIDREL0
	MiscTPIDRROEL0
	MiscTPIDREL1
	MiscTPIDREL2
	MiscTPIDREL3
	MiscCONTEXTIDREL1
	MiscPAREL1
	MiscAFSR0EL1
	MiscAFSR1EL1
	MiscCPACREL1
	MiscCPTREL2
	MiscCPTREL3
	MiscHCREL2
	MiscSCREL3
	MiscVTTBREL2
	MiscVTCREL2
	MiscMDSCREL1
	MiscZCREL1
	MiscZCREL2
	MiscZCREL3
	MiscCNTFRQEL0
	MiscCNTVCTEL0
	MiscMIDREL1
	MiscMPIDREL1
	NumMiscRegs
)

var miscRegNames = [NumMiscRegs]string{
	"cpsr", "spsr", "spsr_fiq", "spsr_irq", "spsr_svc", "spsr_mon", "spsr_abt", "spsr_hyp",
	"spsr_und", "elr_hyp", "fpsid", "fpscr", "mvfr0", "mvfr1", "fpexc", "sctlr", "actlr",
	"cpacr", "ttbr0", "ttbr1", "ttbcr", "dacr", "dfsr", "ifsr", "dfar", "ifar", "vbar",
	"mvbar", "contextidr", "tpidrurw", "tpidruro", "tpidrprw", "midr", "mpidr",
	"nzcv", "daif", "currentel", "fpcr", "fpsr",
	"elr_el1", "elr_el2", "elr_el3",
	"spsr_el1", "spsr_el2", "spsr_el3",
	"esr_el1", "esr_el2", "esr_el3",
	"far_el1", "far_el2", "far_el3",
	"sctlr_el1", "sctlr_el2", "sctlr_el3",
	"actlr_el1", "actlr_el2", "actlr_el3",
	"tcr_el1", "tcr_el2", "tcr_el3",
	"ttbr0_el1", "ttbr0_el2", "ttbr0_el3", "ttbr1_el1",
	"mair_el1", "mair_el2", "mair_el3", "amair_el1",
	"vbar_el1", "vbar_el2", "vbar_el3",
	"tpidr_el0", "tpidrro_el0", "tpidr_el1", "tpidr_el2", "tpidr_el3",
	"contextidr_el1", "par_el1", "afsr0_el1", "afsr1_el1",
	"cpacr_el1", "cptr_el2", "cptr_el3", "hcr_el2", "scr_el3",
	"vttbr_el2", "vtcr_el2", "mdscr_el1",
	"zcr_el1", "zcr_el2", "zcr_el3",
	"cntfrq_el0", "cntvct_el0", "midr_el1", "mpidr_el1",
}

func (r MiscReg) String() string {
	if r < 0 || r >= NumMiscRegs {
		return "unknown"
	}
	return miscRegNames[r]
}

// MiscRegMap maps lower-case trace register names to misc register indices.
// It is never mutated after construction.
type MiscRegMap map[string]MiscReg

// Lookup resolves a trace register name, ignoring case.
func (m MiscRegMap) Lookup(name string) (MiscReg, bool) {
	r, ok := m[strings.ToLower(name)]
	return r, ok
}

// Names returns the known register names in sorted order.
func (m MiscRegMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

var miscRegMap = sync.OnceValue(func() MiscRegMap {
	m := make(MiscRegMap, NumMiscRegs)
	for i, name := range miscRegNames {
		m[name] = MiscReg(i)
	}
	return m
})

// MiscRegs returns the process-wide misc register name map, building it on
// first use.
func MiscRegs() MiscRegMap {
	return miscRegMap()
}

// lateSettling lists registers that exception entry rewrites after the
// instruction has retired.
var lateSettling = []MiscReg{
	MiscCPSR, MiscSPSR, MiscSPSRFiq, MiscSPSRIrq, MiscSPSRSvc, MiscSPSRMon, MiscSPSRAbt,
	MiscSPSRHyp, MiscSPSRUnd, MiscELRHyp, MiscNZCV, MiscDAIF, MiscCurrentEL,
	MiscELREL1, MiscELREL2, MiscELREL3, MiscSPSREL1, MiscSPSREL2, MiscSPSREL3,
	MiscESREL1, MiscESREL2, MiscESREL3, MiscFAREL1, MiscFAREL2, MiscFAREL3,
	MiscDFSR, MiscIFSR, MiscDFAR, MiscIFAR,
}

// IsLateSettling reports whether r may only hold its final value once fault
// handling for the retiring instruction has completed.
func IsLateSettling(r MiscReg) bool {
	return slices.Contains(lateSettling, r)
}
