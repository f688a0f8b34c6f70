package pkg

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/crudkit/internal/domain"
)

// Response wraps every JSON body the API sends.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ValidationErrorResponse carries one message per rejected request field.
type ValidationErrorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func respond(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, Response{Code: status, Message: msg, Data: data})
}

func Success(c *gin.Context, data any) { respond(c, http.StatusOK, "success", data) }

func Created(c *gin.Context, data any) { respond(c, http.StatusCreated, "created", data) }

// List sends a page of records, a domain.PaginatedResult or a domain.Page.
func List(c *gin.Context, page any) { respond(c, http.StatusOK, "success", page) }

// Error sends err with the status domain.HTTPStatusCode picks. Messages of
// internal and unclassified errors are replaced with "internal error".
func Error(c *gin.Context, err error) {
	respond(c, domain.HTTPStatusCode(err), publicMessage(err), nil)
}

func publicMessage(err error) string {
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Code != domain.CodeInternal {
		return appErr.Message
	}
	return "internal error"
}

// ValidationError sends a 400. Field names are the lower-cased Go names.
func ValidationError(c *gin.Context, err error) {
	writeValidation(c, err, nil)
}

// BindAndValidate binds the request into obj. On failure it writes a 400
// keyed by the json names of obj's fields and returns false.
//
//	if !pkg.BindAndValidate(c, &req) {
//		return
//	}
func BindAndValidate(c *gin.Context, obj any) bool {
	err := c.ShouldBind(obj)
	if err != nil {
		writeValidation(c, err, obj)
	}
	return err == nil
}

func writeValidation(c *gin.Context, err error, obj any) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		respond(c, http.StatusBadRequest, "bad request", nil)
		return
	}

	names := jsonNames(obj)
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		name, ok := names[fe.StructField()]
		if !ok {
			name = strings.ToLower(fe.Field())
		}
		fields[name] = fieldMessage(fe)
	}
	c.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Code:    http.StatusBadRequest,
		Message: "validation error",
		Errors:  fields,
	})
}

// jsonNames maps the Go field names of struct obj to their json names.
func jsonNames(obj any) map[string]string {
	if obj == nil {
		return nil
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	names := make(map[string]string, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if name := jsonTagName(f.Tag.Get("json")); name != "" {
			names[f.Name] = name
		}
	}
	return names
}

func jsonTagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

// fieldMessage renders a human-readable message for one failed rule.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	}
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}
