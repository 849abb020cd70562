package verifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/colorfulnotion/tarmac/tarmac"
	"github.com/colorfulnotion/tarmac/tarmacerrors"
)

// AddrRange is a half-open address range [Start, End).
type AddrRange struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

func (r AddrRange) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

func (r AddrRange) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Start, r.End)
}

// Config holds the options of a verification session.
type Config struct {
	TracePath string `yaml:"trace_path"`
	// StartPC delays verification until the host retires this PC; 0 starts
	// immediately.
	StartPC        uint64 `yaml:"start_pc"`
	ExitOnDiff     bool   `yaml:"exit_on_diff"`
	ExitOnInsnDiff bool   `yaml:"exit_on_insn_diff"`
	MemWrCheck     bool   `yaml:"mem_wr_check"`
	// IgnoreMemAddr lists memory write addresses that are never checked.
	IgnoreMemAddr []AddrRange `yaml:"ignore_mem_addr"`
	CPUID         bool        `yaml:"cpu_id"`
	// MaxVectorLength is the SVE vector length limit in quadwords.
	MaxVectorLength    int    `yaml:"max_vector_length"`
	DeferredCheckDelay uint64 `yaml:"deferred_check_delay"`
	DeferAllRegisters  bool   `yaml:"defer_all_registers"`
	StateDiff          bool   `yaml:"state_diff"`
	IndexPath          string `yaml:"index_path"`
}

func DefaultConfig() Config {
	return Config{
		MaxVectorLength:    tarmac.DefaultMaxVectorLength,
		DeferredCheckDelay: 1,
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects inconsistent settings. It never touches the trace.
func (c *Config) Validate() error {
	if c.ExitOnDiff && c.ExitOnInsnDiff {
		return tarmacerrors.ErrConflictingExitPolicy
	}
	if c.MaxVectorLength < 1 || c.MaxVectorLength > tarmac.DefaultMaxVectorLength {
		return fmt.Errorf("max_vector_length %d: %w", c.MaxVectorLength, tarmacerrors.ErrBadVectorLength)
	}
	if c.DeferredCheckDelay < 1 {
		return tarmacerrors.ErrBadDeferredDelay
	}
	for _, r := range c.IgnoreMemAddr {
		if r.End < r.Start {
			return fmt.Errorf("ignore_mem_addr %s: %w", r, tarmacerrors.ErrBadAddrRange)
		}
	}
	return nil
}

// ReaderOptions returns the trace decoding options implied by c.
func (c *Config) ReaderOptions() tarmac.Options {
	return tarmac.Options{CPUID: c.CPUID, MaxVectorLength: c.MaxVectorLength}
}

func (c *Config) ignoredAddr(addr uint64) bool {
	for _, r := range c.IgnoreMemAddr {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}
