package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/pkg/rest"
	"github.com/sharetube/watchparty/pkg/validator"
)

func statusOf(err error) int {
	switch domain.Code(err) {
	case domain.CodePermissionDenied, domain.CodeNotAMember:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeExpired:
		return http.StatusGone
	case domain.CodeTransient:
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

func errorOutput(err error) protocol.ErrorOutput {
	code := domain.Code(err)
	message := err.Error()
	if code == domain.CodeInternal {
		message = "internal error"
	}

	return protocol.ErrorOutput{Code: code, Message: message}
}

func (c controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		c.logger.WarnContext(r.Context(), "request failed", "error", err)
	} else {
		c.logger.InfoContext(r.Context(), "request rejected", "error", err)
	}

	rest.WriteJSON(w, status, rest.Envelope{"error": errorOutput(err)})
}

func (c controller) writeUnauthorized(w http.ResponseWriter, _ *http.Request, message string) {
	rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": protocol.ErrorOutput{
		Code:    domain.CodePermissionDenied,
		Message: message,
	}})
}

func validationErr(errs []validator.ValidationError) error {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}

	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(messages, "; "))
}

var errAttachmentsDisabled = errors.New("attachments are disabled")
