package nodetype

import (
	"github.com/aretw0/scenaria/pkg/domain"
)

// Numeric discriminators of the built-in step variants.
const (
	CodeDelay          = 1
	CodeSignal         = 2
	CodeJump           = 3
	CodeParallel       = 4
	CodeCondition      = 5
	CodeActivitySystem = 6
	CodeActivityModbus = 7
)

// NewDefaultRegistry returns a registry with the built-in step variants and the branch contract.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range []Contract{
		NewStepContract(domain.StepDelay, CodeDelay, "Delay", func(p map[string]any) error {
			return validateParams[DelayParams]("delay", p)
		}),
		NewStepContract(domain.StepSignal, CodeSignal, "Signal", func(p map[string]any) error {
			return validateParams[SignalParams]("signal", p)
		}),
		NewStepContract(domain.StepJump, CodeJump, "Jump", func(p map[string]any) error {
			return validateParams[JumpParams]("jump", p)
		}),
		OwnerContract{NewStepContract(domain.StepParallel, CodeParallel, "Parallel", func(p map[string]any) error {
			return validateParams[ParallelParams]("parallel", p)
		})},
		OwnerContract{NewStepContract(domain.StepCondition, CodeCondition, "Condition", func(p map[string]any) error {
			return validateParams[ConditionParams]("condition", p)
		})},
		NewStepContract(domain.StepActivitySystem, CodeActivitySystem, "System activity", func(p map[string]any) error {
			return validateParams[ActivitySystemParams]("activity_system", p)
		}),
		NewStepContract(domain.StepActivityModbus, CodeActivityModbus, "Modbus activity", func(p map[string]any) error {
			return validateParams[ActivityModbusParams]("activity_modbus", p)
		}),
		BranchContract{},
	} {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}
