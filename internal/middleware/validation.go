package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "citypulse/internal/errors"
)

// RequestValidator decodes query parameters into tagged structs and checks
// them with validator/v10. Field names in errors follow the query tags.
type RequestValidator struct {
	validator *validator.Validate
	logger    *slog.Logger
}

// NewRequestValidator creates a new request validator
func NewRequestValidator(logger *slog.Logger) *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &RequestValidator{
		validator: v,
		logger:    logger.With(slog.String("component", "request_validator")),
	}
}

// DecodeQuery fills dst, a pointer to struct, from r's query string, then
// validates it. Errors are *apierrors.APIError values ready for the
// error handler.
func (v *RequestValidator) DecodeQuery(r *http.Request, dst interface{}) error {
	if err := decodeQuery(r.URL.Query(), dst); err != nil {
		v.logger.DebugContext(r.Context(), "query decoding failed", slog.String("error", err.Error()))
		return err
	}
	return v.ValidateStruct(dst)
}

// ValidateStruct validates a struct and returns validation errors
func (v *RequestValidator) ValidateStruct(s interface{}) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return apierrors.InvalidRequestWithError(err)
	}

	out := make([]apierrors.ValidationError, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(out)
}

func decodeQuery(values url.Values, dst interface{}) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("decode query: destination must be a pointer to struct, got %T", dst)
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		name := strings.SplitN(field.Tag.Get("query"), ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			continue
		}

		target := rv.Field(i)
		if target.Kind() == reflect.Pointer {
			ptr := reflect.New(target.Type().Elem())
			if err := setScalar(ptr.Elem(), raw); err != nil {
				return apierrors.ErrValidation(name, fmt.Sprintf("%s %s", name, err))
			}
			target.Set(ptr)
			continue
		}
		if err := setScalar(target, raw); err != nil {
			return apierrors.ErrValidation(name, fmt.Sprintf("%s %s", name, err))
		}
	}
	return nil
}

func setScalar(v reflect.Value, raw string) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errors.New("must be a valid integer")
		}
		v.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.New("must be true or false")
		}
		v.SetBool(b)
	default:
		return fmt.Errorf("has unsupported type %s", v.Kind())
	}
	return nil
}

// ContentTypeValidator rejects POST bodies whose media type is not listed
func ContentTypeValidator(errorHandler *apierrors.ErrorHandler, contentTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil {
				errorHandler.HandleError(w, r, apierrors.ErrUnsupportedMediaType)
				return
			}
			for _, allowed := range contentTypes {
				if strings.EqualFold(mediaType, allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}

			errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusUnsupportedMediaType,
				"UNSUPPORTED_MEDIA_TYPE",
				"Unsupported content type",
				map[string]interface{}{
					"content_type": mediaType,
					"allowed":      contentTypes,
				},
			))
		})
	}
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}
