package dto

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"regexp"
	"strings"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/pkg/apperror"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

// maxAmountLen bounds decimal strings before they reach the parser.
const maxAmountLen = 40

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterValidators(v)
	}
}

// RegisterValidators installs the custom tags used by the request DTOs.
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("safe_id", validateSafeID)
	_ = v.RegisterValidation("currency", validateCurrency)
	_ = v.RegisterValidation("decimal_positive", validateDecimalPositive)
	v.RegisterTagNameFunc(fieldName)
}

// fieldName reports fields by their json or form name in validation errors.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return ""
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateCurrency accepts a supported currency code in any case.
func validateCurrency(fl validator.FieldLevel) bool {
	return domain.IsSupportedCurrency(normalizeCurrency(fl.Field().String()))
}

// validateDecimalPositive accepts a plain decimal string greater than zero
// with no more fractional digits than the ledger stores.
func validateDecimalPositive(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if s == "" || len(s) > maxAmountLen {
		return false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return domain.IsStorableAmount(d)
}

// BindError turns a gin binding failure into the matching AppError so that
// a bad currency or amount carries the same code the services use.
func BindError(err error) *apperror.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.Validation("malformed request body")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "currency":
		return apperror.ErrUnsupportedCurrency(fmt.Sprint(fe.Value()))
	case "decimal_positive":
		return apperror.ErrInvalidAmount()
	case "required":
		return apperror.Validation(fmt.Sprintf("%s is required", fe.Field()))
	}
	return apperror.Validation(fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		case reflect.Slice:
			for j := 0; j < f.Len(); j++ {
				if el := f.Index(j); el.Kind() == reflect.Struct {
					sanitizeFields(el)
				}
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
