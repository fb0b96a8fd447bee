// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Exchange tickers: letters and digits with an optional class or venue
// suffix such as BRK.B or RDS-A.
var tickerRegex = regexp.MustCompile(`^[A-Za-z0-9]{1,10}([.-][A-Za-z0-9]{1,4})?$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterOn(v)
	}
}

// RegisterOn registers the custom validators on v.
func RegisterOn(v *validator.Validate) {
	_ = v.RegisterValidation("ticker", validateTicker)
	_ = v.RegisterValidation("statement_period", validateStatementPeriod)
}

func validateTicker(fl validator.FieldLevel) bool {
	return tickerRegex.MatchString(fl.Field().String())
}

func validateStatementPeriod(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "annual", "quarter":
		return true
	}
	return false
}
