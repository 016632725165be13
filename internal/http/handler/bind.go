package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/ayesh156/roxeleye-crud/internal/http/response"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(sf reflect.StructField) string {
		return jsonNameFromStructField(sf)
	})
	mustRegister(v, "notblank", validators.NotBlank)
	mustRegister(v, "nonnegfloat", func(fl validator.FieldLevel) bool {
		f, err := strconv.ParseFloat(strings.TrimSpace(fl.Field().String()), 64)
		return err == nil && f >= 0 && !math.IsInf(f, 0)
	})
	mustRegister(v, "nonnegint", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(strings.TrimSpace(fl.Field().String()))
		return err == nil && n >= 0
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// normalizer is implemented by request types that trim or fold their input
// before validation.
type normalizer interface {
	normalize()
}

// decodeJSON reads the body into out and validates it. It writes the error
// response itself and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := jsonPathFromDotPath(baseStructType(out), typeErr.Field)
			response.ValidationFailed(w, r, []response.FieldError{{Field: field, Message: "Invalid value for " + field}})
			return false
		}
		response.Error(w, r, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return validateRequest(w, r, out)
}

func validateRequest(w http.ResponseWriter, r *http.Request, out any) bool {
	if n, ok := out.(normalizer); ok {
		n.normalize()
	}
	fields := validationErrors(out)
	if len(fields) > 0 {
		response.ValidationFailed(w, r, fields)
		return false
	}
	return true
}

func validationErrors(out any) []response.FieldError {
	err := validate.Struct(out)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []response.FieldError{{Field: "body", Message: err.Error()}}
	}
	rootType := baseStructType(out)
	fields := make([]response.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, response.FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(rootType, fe),
		})
	}
	return fields
}

// fieldMessage prefers a msg_<rule> tag, then a msg tag, then a generic text.
func fieldMessage(rootType reflect.Type, fe validator.FieldError) string {
	if rootType != nil {
		if sf, ok := rootType.FieldByName(fe.StructField()); ok {
			if m := sf.Tag.Get("msg_" + fe.Tag()); m != "" {
				return m
			}
			if m := sf.Tag.Get("msg"); m != "" {
				return m
			}
		}
	}
	return fe.Field() + " " + validationMessage(fe.Tag(), fe.Param())
}

// pathID parses a positive integer URL parameter. On failure it writes a
// validation error carrying message and returns false.
func pathID(w http.ResponseWriter, r *http.Request, param, message string) (uint, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id < 1 || id > math.MaxUint32 {
		response.ValidationFailed(w, r, []response.FieldError{{Field: param, Message: message}})
		return 0, false
	}
	return uint(id), true
}

func baseStructType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Struct {
		return t
	}
	return nil
}

func jsonPathFromDotPath(rootType reflect.Type, dotPath string) string {
	dotPath = strings.TrimSpace(dotPath)
	if dotPath == "" {
		return "body"
	}
	current := rootType
	parts := strings.Split(dotPath, ".")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		name := part
		var next reflect.Type
		if current != nil && current.Kind() == reflect.Struct {
			for i := 0; i < current.NumField(); i++ {
				sf := current.Field(i)
				if sf.Name == part || jsonNameFromStructField(sf) == part {
					name = jsonNameFromStructField(sf)
					next = sf.Type
					break
				}
			}
		}
		out = append(out, name)
		for next != nil && next.Kind() == reflect.Pointer {
			next = next.Elem()
		}
		current = next
	}
	return strings.Join(out, ".")
}

func jsonNameFromStructField(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" {
		return sf.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return sf.Name
	}
	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required", "notblank":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
