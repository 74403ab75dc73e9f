package bridge

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/wondertwin-ai/healthbridge/internal/provider"
)

const defaultLimit = 100

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// readParams is a ReadOptions after defaults are applied.
type readParams struct {
	DataType  string `json:"dataType"`
	StartTime int64  `json:"startTime" validate:"gte=0"`
	EndTime   int64  `json:"endTime" validate:"gtefield=StartTime"`
	Limit     int    `json:"limit" validate:"gte=1"`
}

func normalize(opts ReadOptions, nowMillis int64) readParams {
	p := readParams{
		DataType: opts.DataType,
		EndTime:  nowMillis,
		Limit:    defaultLimit,
	}
	if opts.StartTime != nil {
		p.StartTime = *opts.StartTime
	}
	if opts.EndTime != nil {
		p.EndTime = *opts.EndTime
	}
	if opts.Limit != nil {
		p.Limit = *opts.Limit
	}
	return p
}

func (p readParams) validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be before startTime", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func (p readParams) request() provider.ReadRequest {
	return provider.ReadRequest{
		Kind:      provider.DataKind(p.DataType),
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Limit:     p.Limit,
	}
}
