package handlers

import (
	"errors"

	"github.com/aryamantandon18/connectly/internal/apperr"
	"github.com/aryamantandon18/connectly/internal/store"

	"github.com/gin-gonic/gin"
)

// respondError writes err with the status of its kind. Causes of server
// errors are attached to the gin context for the request logger and are not
// sent to the client.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind.Status() >= 500 {
		_ = c.Error(err)
	}
	c.JSON(kind.Status(), gin.H{"message": apperr.Message(err)})
}

// fromStore classifies a store error. what names the looked up entity in
// not-found messages.
func fromStore(err error, what string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, what+" not found", err)
	case errors.Is(err, store.ErrNotMember):
		return apperr.Wrap(apperr.KindUnauthorized, "Member not found", err)
	case errors.Is(err, store.ErrValidation):
		return apperr.Wrap(apperr.KindBadRequest, err.Error(), err)
	case errors.Is(err, store.ErrConflict):
		return apperr.Wrap(apperr.KindBadRequest, err.Error(), err)
	}
	return apperr.Wrap(apperr.KindInternal, "store failure", err)
}
