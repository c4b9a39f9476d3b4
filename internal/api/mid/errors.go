package mid

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/ahrav/recon-armada/internal/api/errs"
	appautoscan "github.com/ahrav/recon-armada/internal/app/autoscan"
	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
	"github.com/ahrav/recon-armada/pkg/web"
)

// Errors handles errors coming out of the call chain. Errors from the
// autoscan service are classified into their web codes and internal errors
// are logged and replaced with a generic message.
func Errors(log *logger.Logger) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			resp := next(ctx, r)
			err, ok := resp.(error)
			if !ok {
				return resp
			}

			appErr := classify(err)

			log.Error(ctx, "handled error during request",
				"err", err,
				"code", appErr.Code.String(),
				"source_err_file", path.Base(appErr.FileName),
				"source_err_func", path.Base(appErr.FuncName))

			if appErr.Code == errs.InternalOnlyLog || appErr.Code == errs.Internal {
				appErr = errs.Newf(errs.Internal, "internal server error")
			}

			return appErr
		}

		return h
	}

	return m
}

// classify maps an error onto an errs.Error. Errors already carrying a
// specific code keep it; Unknown and foreign errors are matched against the
// autoscan error types.
func classify(err error) *errs.Error {
	appErr := errs.GetError(err)
	if appErr != nil && appErr.Code != errs.Unknown {
		return appErr
	}

	var (
		conflict *domain.ConflictError
		invalid  *domain.InvalidStateError
	)
	code := errs.Internal
	switch {
	case errors.As(err, &conflict):
		code = errs.AlreadyExists
	case errors.As(err, &invalid):
		code = errs.FailedPrecondition
	case errors.Is(err, domain.ErrJobNotFound):
		code = errs.NotFound
	case errors.Is(err, domain.ErrInvalidTarget), errors.Is(err, appautoscan.ErrUnknownProfile):
		code = errs.InvalidArgument
	case errors.Is(err, appautoscan.ErrShuttingDown):
		code = errs.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = errs.DeadlineExceeded
	}

	if appErr != nil {
		out := *appErr
		out.Code = code
		return &out
	}
	return errs.New(code, err)
}
