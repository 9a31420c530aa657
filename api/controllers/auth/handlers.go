package auth

import (
	"context"
	"net/http"

	"github.com/studentnest/nest-backend/api/responses"
	"github.com/studentnest/nest-backend/api/validators"
	"github.com/studentnest/nest-backend/internal/auth"
	"github.com/studentnest/nest-backend/pkg/config"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/logger"
)

var errUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")

// jsonAction decodes Req, runs call and writes its result with status.
func jsonAction[Req, Resp any](logg *logger.Logger, status int, call func(context.Context, Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if call == nil {
			responses.WriteError(r.Context(), logg, w, errUnavailable)
			return
		}
		var body Req
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := call(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// AuthRegister creates a student or host account and signs it in.
func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return jsonAction[auth.RegisterRequest, *auth.TokenResponse](logg, http.StatusCreated, nil)
	}
	return jsonAction(logg, http.StatusCreated, svc.Register)
}

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return jsonAction[auth.LoginRequest, *auth.TokenResponse](logg, http.StatusOK, nil)
	}
	return jsonAction(logg, http.StatusOK, svc.Login)
}

// AdminAuthRegister bootstraps an admin account and signs it in. Production
// builds never mount it; the check here covers a misrouted request.
func AdminAuthRegister(adminRegister auth.AdminRegisterService, svc auth.Service, cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	if cfg.App.IsProd() {
		return func(w http.ResponseWriter, r *http.Request) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin register disabled in production"))
		}
	}
	if adminRegister == nil || svc == nil {
		return jsonAction[auth.AdminRegisterRequest, *auth.TokenResponse](logg, http.StatusCreated, nil)
	}
	return jsonAction(logg, http.StatusCreated, func(ctx context.Context, req auth.AdminRegisterRequest) (*auth.TokenResponse, error) {
		if _, err := adminRegister.Register(ctx, req); err != nil {
			return nil, err
		}
		return svc.Login(ctx, auth.LoginRequest{Email: req.Email, Password: req.Password})
	})
}
