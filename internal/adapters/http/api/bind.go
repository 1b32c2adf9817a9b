package api

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/okian/podium/internal/domain/model"
)

var validate = validator.New() //nolint:gochecknoglobals // validator caches struct metadata

// forecastQuery is the query string of the forecast endpoints. A nil TopN
// means the parameter was absent.
type forecastQuery struct {
	Year   int    `query:"year" validate:"required,gte=1"`
	Model  string `query:"model" default:"moving_average" validate:"oneof=moving_average exponential_smoothing"`
	Season string `query:"season" validate:"omitempty,oneof=all summer winter"`
	TopN   *int   `query:"top_n" validate:"omitempty,gte=1"`
}

// contendersQuery is the query string of the contenders endpoint.
type contendersQuery struct {
	Limit  *int   `query:"limit" validate:"omitempty,gte=1,lte=1000"`
	Season string `query:"season" validate:"omitempty,oneof=all summer winter"`
}

// bindQuery copies query parameters into the fields of the struct dst points
// to by their `query` tag, applies `default` tags and validates the result.
// Any problem is an InvalidRequest.
func bindQuery(values url.Values, dst any) error {
	if err := decodeQuery(values, dst); err != nil {
		return err
	}
	if err := defaults.Set(dst); err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", model.ErrInvalidRequest, validationMessage(err))
	}
	return nil
}

// decodeQuery fills string, int and *int fields. Strings are trimmed and
// lower-cased; absent or empty numeric parameters leave the field untouched.
func decodeQuery(values url.Values, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("unsupported query type %T", dst)
	}
	rv = rv.Elem()
	rt := rv.Type()
	for i := range rt.NumField() {
		name := rt.Field(i).Tag.Get("query")
		if name == "" || !values.Has(name) {
			continue
		}
		raw := strings.TrimSpace(values.Get(name))
		field := rv.Field(i)
		if raw == "" && field.Kind() != reflect.String {
			continue
		}
		switch {
		case field.Kind() == reflect.String:
			field.SetString(strings.ToLower(raw))
		case field.Kind() == reflect.Int:
			n, err := intParam(name, raw)
			if err != nil {
				return err
			}
			field.SetInt(int64(n))
		case field.Kind() == reflect.Pointer && field.Type().Elem().Kind() == reflect.Int:
			n, err := intParam(name, raw)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(&n))
		default:
			return fmt.Errorf("unsupported query field %s of type %s", rt.Field(i).Name, field.Type())
		}
	}
	return nil
}

func intParam(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", model.ErrInvalidRequest, name, raw)
	}
	return n, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	name := queryName(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", name, fe.Tag())
	}
}

func queryName(field string) string {
	switch field {
	case "TopN":
		return "top_n"
	default:
		return strings.ToLower(field)
	}
}
