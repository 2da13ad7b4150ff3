package common

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// sharedValidator serves adapters created without their own instance.
var sharedValidator = validator.New()

// NewGenericEchoValidator returns an adapter with its own validator instance.
func NewGenericEchoValidator() *GenericEchoValidator {
	return &GenericEchoValidator{Validator: validator.New()}
}

// GenericEchoValidator plugs go-playground/validator into echo's Validate hook.
// The adapter is never mutated after construction.
type GenericEchoValidator struct {
	Validator *validator.Validate
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	v := gv.Validator
	if v == nil {
		v = sharedValidator
	}
	if err := v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request body: %v", err))
	}
	return nil
}

// BindAndValidate binds the request into target and runs the registered validator.
// Binding failures are reported as 400 like validation failures.
func BindAndValidate(ctx echo.Context, target any) error {
	if err := ctx.Bind(target); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received malformed request: %v", err))
	}
	if ctx.Echo().Validator == nil {
		return nil
	}
	return ctx.Validate(target)
}
