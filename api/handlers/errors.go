package handlers

import (
	"net/http"

	"github.com/BinLe1988/moderation-gateway/pkg/moderation"
)

// StatusFor maps an error kind to the HTTP status of a single-item response.
func StatusFor(e *moderation.Error) int {
	switch e.Kind {
	case moderation.KindValidation:
		return http.StatusBadRequest
	case moderation.KindConfig:
		return http.StatusServiceUnavailable
	case moderation.KindTransient:
		switch {
		case e.Timeout:
			return http.StatusGatewayTimeout
		case e.Status == http.StatusTooManyRequests:
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case moderation.KindPermanent:
		return http.StatusBadGateway
	case moderation.KindCanceled:
		if e.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
