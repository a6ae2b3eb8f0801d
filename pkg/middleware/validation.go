package middleware

import (
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/market-console/finance-portal/pkg/errors"
)

// CustomValidation is a validator tag contributed by a service
type CustomValidation struct {
	Tag     string
	Fn      validator.Func
	Message string
}

var (
	validate     *validator.Validate
	validateOnce sync.Once

	messagesMu     sync.RWMutex
	customMessages = map[string]string{}
)

var builtinValidations = []CustomValidation{
	{Tag: "day", Fn: validateDay, Message: "must be a date in YYYY-MM-DD format"},
	{Tag: "safe_string", Fn: validateSafeString, Message: "contains invalid characters"},
}

// InitValidator sets up the standalone validator and gin's binding engine
// with the shared validations, then registers custom ones. Call it during
// startup; registration is not safe alongside request handling.
func InitValidator(custom ...CustomValidation) *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		useJSONNames(validate)
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			useJSONNames(v)
		}
		register(builtinValidations)
	})
	register(custom)
	return validate
}

func register(validations []CustomValidation) {
	engine, _ := binding.Validator.Engine().(*validator.Validate)
	messagesMu.Lock()
	defer messagesMu.Unlock()
	for _, cv := range validations {
		_ = validate.RegisterValidation(cv.Tag, cv.Fn)
		if engine != nil {
			_ = engine.RegisterValidation(cv.Tag, cv.Fn)
		}
		customMessages[cv.Tag] = cv.Message
	}
}

// useJSONNames reports fields by their JSON names
func useJSONNames(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// DayLayout is the wire format of calendar-day fields
const DayLayout = "2006-01-02"

var safeStringRegex = regexp.MustCompile(`^[^\x00-\x08\x0B\x0C\x0E-\x1F\x7F]*$`)

func validateDay(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := time.Parse(DayLayout, value)
	return err == nil
}

func validateSafeString(fl validator.FieldLevel) bool {
	return safeStringRegex.MatchString(fl.Field().String())
}

// ValidationErrorFormatter formats validation errors into a map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}

	return fields
}

func formatValidationError(e validator.FieldError) string {
	messagesMu.RLock()
	msg, ok := customMessages[e.Tag()]
	messagesMu.RUnlock()
	if ok {
		return msg
	}
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
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

// BindAndValidate binds request body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return errors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// InputSanitizer middleware sanitizes query parameters
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		for key, values := range query {
			for i, v := range values {
				values[i] = SanitizeString(v)
			}
			query[key] = values
		}
		c.Request.URL.RawQuery = query.Encode()

		c.Next()
	}
}

// ContentType middleware requires JSON bodies on POST/PUT/PATCH
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "POST", "PUT", "PATCH":
			contentType := c.GetHeader("Content-Type")
			if c.Request.ContentLength > 0 && !strings.HasPrefix(contentType, "application/json") {
				AbortWithAppError(c, errors.NewAppError("INVALID_CONTENT_TYPE", "Content-Type must be application/json", 415))
				return
			}
		}
		c.Next()
	}
}
