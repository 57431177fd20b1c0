package req

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/Dhoini/findxo-settlement/pkg/res"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FieldError ошибка валидации одного поля
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Decode декодирует JSON из io.ReadCloser в структуру типа T.
func Decode[T any](body io.ReadCloser) (T, error) {
	var payload T
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// IsValid валидирует структуру типа T.
func IsValid[T any](payload T) error {
	return validate.Struct(payload)
}

// FieldErrors переводит ошибки validator в список полей для ответа.
func FieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: strings.ToLower(fe.Field()), Rule: fe.Tag()})
	}
	return fields
}

// HandleBody декодирует, валидирует тело запроса и при ошибке сам пишет ответ 422.
func HandleBody[T any](w http.ResponseWriter, r *http.Request, log *logger.Logger) (*T, error) {
	body, err := Decode[T](r.Body)
	if err != nil {
		log.Warnw("Failed to decode request body", "path", r.URL.Path, "error", err)
		res.JsonErrorResponse(w, res.ErrorResponse{Error: "Invalid request format", Code: "invalid_body"}, http.StatusUnprocessableEntity, log)
		return nil, fmt.Errorf("decode: %w", err)
	}

	if err := IsValid(body); err != nil {
		log.Warnw("Request body validation failed", "path", r.URL.Path, "error", err)
		res.JsonErrorResponse(w, res.ErrorResponse{
			Error:   "Invalid request data",
			Code:    "validation_failed",
			Details: FieldErrors(err),
		}, http.StatusUnprocessableEntity, log)
		return nil, fmt.Errorf("validate: %w", err)
	}
	return &body, nil
}
