package middleware

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/wms-platform/returns-service/pkg/errors"
)

var validatorOnce sync.Once

var customValidators = map[string]validator.Func{
	"currency":      validateCurrency,
	"return_status": validateReturnStatus,
	"channel":       validateChannel,
	"condition":     validateCondition,
	"safe_string":   validateSafeString,
}

// InitValidator registers the custom validators on gin's binding validator
func InitValidator() {
	validatorOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		for tag, fn := range customValidators {
			_ = v.RegisterValidation(tag, fn)
		}
		v.RegisterTagNameFunc(jsonTagName)
	})
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

var (
	currencyRegex   = regexp.MustCompile(`^[A-Z]{3}$`)
	safeStringRegex = regexp.MustCompile(`^[^\x00-\x08\x0B\x0C\x0E-\x1F]*$`)
)

var returnStatuses = map[string]bool{
	"DRAFT": true, "REQUESTED": true, "APPROVED": true, "IN_TRANSIT": true, "RECEIVED": true,
	"REFUNDED": true, "EXCHANGED": true, "DECLINED": true, "CANCELED": true, "CLOSED": true,
}

func validateCurrency(fl validator.FieldLevel) bool {
	return currencyRegex.MatchString(fl.Field().String())
}

func validateReturnStatus(fl validator.FieldLevel) bool {
	return returnStatuses[fl.Field().String()]
}

func validateChannel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "customer", "merchant", "api":
		return true
	}
	return false
}

func validateCondition(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "new", "used", "damaged":
		return true
	}
	return false
}

func validateSafeString(fl validator.FieldLevel) bool {
	return safeStringRegex.MatchString(fl.Field().String())
}

// ValidationErrorFormatter maps each failed field to a readable message
func ValidationErrorFormatter(err validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(err))
	for _, e := range err {
		fields[fieldPath(e)] = formatValidationError(e)
	}
	return fields
}

// fieldPath drops the top-level struct name from the namespace, e.g. "items[0].quantity"
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + e.Param()
	case "currency":
		return "must be a 3-letter upper-case currency code"
	case "return_status":
		return "must be a known return status"
	case "channel":
		return "must be one of: customer, merchant, api"
	case "condition":
		return "must be one of: new, used, damaged"
	case "safe_string":
		return "contains invalid characters"
	default:
		return "is invalid"
	}
}

// BindAndValidate binds the JSON body into obj and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			appErr := errors.ErrValidation("validation failed")
			for field, msg := range ValidationErrorFormatter(validationErrors) {
				appErr.WithDetail(field, msg)
			}
			return appErr
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// BindQuery binds and validates query parameters into obj
func BindQuery(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindQuery(obj); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			appErr := errors.ErrValidation("invalid query parameters")
			for field, msg := range ValidationErrorFormatter(validationErrors) {
				appErr.WithDetail(field, msg)
			}
			return appErr
		}
		return errors.ErrBadRequest("invalid query parameters: " + err.Error())
	}
	return nil
}

// Policy documents may also be uploaded as YAML
var acceptedContentTypes = []string{
	"application/json",
	"application/yaml",
	"application/x-yaml",
	"text/yaml",
}

// ContentType rejects write requests whose body is neither JSON nor YAML
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "POST", "PUT", "PATCH":
			if c.Request.ContentLength > 0 && !acceptedContentType(c.ContentType()) {
				AbortWithAppError(c, errors.NewAppError("UNSUPPORTED_MEDIA_TYPE",
					"Content-Type must be application/json or application/yaml", 415))
				return
			}
		}
		c.Next()
	}
}

func acceptedContentType(ct string) bool {
	for _, accepted := range acceptedContentTypes {
		if strings.HasPrefix(ct, accepted) {
			return true
		}
	}
	return false
}
