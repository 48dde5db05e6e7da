package nodetype

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// paramsValidate is shared by every built-in variant.
var paramsValidate *validator.Validate

func init() {
	paramsValidate = validator.New()
	_ = paramsValidate.RegisterValidation("iso8601duration", validateDuration)
}

var durationPattern = regexp.MustCompile(`^P(\d+Y)?(\d+M)?(\d+W)?(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`)

// validateDuration accepts ISO-8601 durations such as PT1S or P1DT2H.
func validateDuration(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "P" || strings.HasSuffix(s, "T") {
		return false
	}
	return durationPattern.MatchString(s)
}

// DelayParams configures a delay step.
type DelayParams struct {
	TimeSpan string `mapstructure:"timeSpan" validate:"omitempty,iso8601duration"`
}

// SignalParams configures a signal step.
type SignalParams struct {
	Signal string `mapstructure:"signal" validate:"omitempty,max=128"`
}

// JumpParams configures a jump step.
type JumpParams struct {
	TargetStepID string `mapstructure:"targetStepId" validate:"omitempty,max=128"`
}

// ParallelParams configures a parallel step.
type ParallelParams struct {
	WaitAll bool `mapstructure:"waitAll"`
}

// ConditionParams configures a condition step.
type ConditionParams struct {
	Expression string `mapstructure:"expression" validate:"omitempty,max=1024"`
}

// ActivitySystemParams configures a system activity.
type ActivitySystemParams struct {
	Action  string `mapstructure:"action" validate:"omitempty,oneof=start stop restart notify"`
	Target  string `mapstructure:"target" validate:"omitempty,max=256"`
	Timeout string `mapstructure:"timeout" validate:"omitempty,iso8601duration"`
}

// ActivityModbusParams configures a write to a Modbus register.
type ActivityModbusParams struct {
	Address  string `mapstructure:"address" validate:"omitempty,hostname_port"`
	UnitID   *int   `mapstructure:"unitId" validate:"omitempty,gte=0,lte=247"`
	Register *int   `mapstructure:"register" validate:"omitempty,gte=0,lte=65535"`
	Value    *int   `mapstructure:"value" validate:"omitempty,gte=0,lte=65535"`
}

// validateParams decodes params into a fresh T and runs its validation tags.
func validateParams[T any](typ string, params map[string]any) error {
	var p T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("%s params: %w", typ, err)
	}
	if err := paramsValidate.Struct(p); err != nil {
		return fmt.Errorf("%s params: %w", typ, err)
	}
	return nil
}
