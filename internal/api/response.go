package api

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// Envelope codes.
const (
	codeSuccess = 2000
	msgSuccess  = "Success"
)

// envelope is the body shape of every crawler endpoint.
type envelope struct {
	Status  bool   `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type messageData struct {
	Message string `json:"message"`
}

type missingData struct {
	MissingParameters []string `json:"missingParameters"`
}

func (s *Server) writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, s.logger, http.StatusOK, envelope{Status: true, Code: codeSuccess, Message: msgSuccess, Data: data})
}

func (s *Server) writeFailure(w http.ResponseWriter, status int, message string, data any) {
	if data == nil {
		data = struct{}{}
	}
	writeJSON(w, s.logger, status, envelope{Status: false, Code: status, Message: message, Data: data})
}

func (s *Server) writeNotFound(w http.ResponseWriter, message string) {
	s.writeFailure(w, http.StatusNotFound, message, messageData{Message: message})
}

func (s *Server) writeMissing(w http.ResponseWriter, missing []string) {
	s.writeFailure(w, http.StatusBadRequest, "Missing Parameters", missingData{MissingParameters: missing})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

// newValidator reports fields by their JSON names and registers notnull,
// which rejects empty strings and the literal "NULL".
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notnull", func(fl validator.FieldLevel) bool {
		return !crawler.IsBlank(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// missingParameters maps failed fields to request parameter names, so a
// blank element of urls reports "urls".
func missingParameters(errs validator.ValidationErrors) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, fe := range errs {
		name, _, _ := strings.Cut(fe.Field(), "[")
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
