package res

import (
	"encoding/json"
	"net/http"

	"github.com/Dhoini/findxo-settlement/pkg/logger"
)

// ErrorResponse представляет формат JSON-ответа для ошибок.
type ErrorResponse struct {
	Error     string `json:"error"`                // Сообщение об ошибке (для пользователя)
	Code      string `json:"code,omitempty"`       // Код ошибки (для программной обработки)
	ErrorCode int    `json:"error_code,omitempty"` // HTTP статус
	Details   any    `json:"details,omitempty"`    // Детали ошибки (например, ошибки валидации)
}

// JsonResponse отправляет JSON-ответ с заданным статусом.
func JsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JsonErrorResponse отправляет JSON ответ ошибки.
func JsonErrorResponse(w http.ResponseWriter, errResponse ErrorResponse, status int, log *logger.Logger) {
	if errResponse.ErrorCode == 0 {
		errResponse.ErrorCode = status
	}
	JsonResponse(w, errResponse, status)
	if status >= http.StatusInternalServerError {
		log.Errorw("Error response", "status", status, "error", errResponse.Error, "code", errResponse.Code)
		return
	}
	log.Debugw("Error response", "status", status, "error", errResponse.Error, "code", errResponse.Code)
}
