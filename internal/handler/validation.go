package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/projecthub/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator はmodelの列挙型に対応するcohort、class_typeルールを登録したvalidatorを返す。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("cohort", func(fl validator.FieldLevel) bool {
		return model.Cohort(fl.Field().String()).Valid()
	})
	v.RegisterValidation("class_type", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || model.ClassType(s).Valid()
	})
	return v
}

// decodeAndValidate はリクエストボディをdstにデコードし、validateタグで検証する。
// 失敗した場合はINVALID_REQUESTのAPIErrorを返す。
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return model.NewInvalidRequestError("リクエストボディの解析に失敗しました")
	}
	if err := validate.Struct(dst); err != nil {
		return model.NewInvalidRequestError(describeValidationError(err))
	}
	return nil
}

func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, ", ")
}
