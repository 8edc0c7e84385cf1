package httpx

import (
	"net/http"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
)

// currentUser loads the principal's account.
func (h *Handlers) currentUser(r *http.Request) (*repository.User, error) {
	p, err := requirePrincipal(r.Context())
	if err != nil {
		return nil, err
	}
	return h.Local.GetUser(r.Context(), p.UserID)
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(user))
}

func (h *Handlers) deleteMe(w http.ResponseWriter, r *http.Request) {
	p, err := requireSudo(r.Context())
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	if err := h.Local.DeleteUser(r.Context(), p.UserID); err != nil {
		apperr.WriteError(w, err)
		return
	}
	clearTokenCookies(w, h.Holder.Load())
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handlers) enableTwoFA(w http.ResponseWriter, r *http.Request) {
	snap := h.Holder.Load()
	if _, err := requireSudo(r.Context()); err != nil {
		apperr.WriteError(w, err)
		return
	}
	user, err := h.currentUser(r)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	var in struct {
		Method      string `json:"method"` // "phone" | "qr"
		PhoneNumber string `json:"phoneNumber"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	enrollment, err := h.TwoFA.BeginEnrollment(r.Context(), snap, user, repository.TwoFAMethod(in.Method), in.PhoneNumber)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollment)
}

func (h *Handlers) verifyTwoFAEnrollment(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	var in struct {
		Handle string `json:"handle"`
		Code   string `json:"code"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	if err := h.TwoFA.ConfirmEnrollment(r.Context(), user, in.Handle, in.Code); err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

func (h *Handlers) disableTwoFA(w http.ResponseWriter, r *http.Request) {
	if _, err := requireSudo(r.Context()); err != nil {
		apperr.WriteError(w, err)
		return
	}
	user, err := h.currentUser(r)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	if err := h.TwoFA.Disable(r.Context(), user); err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
}

// changePassword needs a sudo session. When the account has 2FA the change is
// staged behind a challenge and nothing commits until the step endpoint
// confirms it.
func (h *Handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	if _, err := requireSudo(r.Context()); err != nil {
		apperr.WriteError(w, err)
		return
	}
	user, err := h.currentUser(r)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	var in struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	ch, err := h.Local.ChangePassword(r.Context(), user, in.OldPassword, in.NewPassword)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	if ch != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"twoFaRequired": true,
			"handle":        ch.Handle,
			"method":        ch.Method,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": true})
}

func (h *Handlers) requestEmailChange(w http.ResponseWriter, r *http.Request) {
	if _, err := requireSudo(r.Context()); err != nil {
		apperr.WriteError(w, err)
		return
	}
	user, err := h.currentUser(r)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	var in struct {
		NewEmail string `json:"newEmail"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	if err := h.Local.RequestEmailChange(r.Context(), user, in.NewEmail); err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"sent": true})
}

// confirmEmailChange is public: the token arrives by mail on the new address.
func (h *Handlers) confirmEmailChange(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		apperr.WriteError(w, apperr.InvalidArgument.WithDetail("token is required"))
		return
	}
	if err := h.Local.ConfirmEmailChange(r.Context(), tok); err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": true})
}

func (h *Handlers) createTeamInvite(w http.ResponseWriter, r *http.Request) {
	if _, err := requireSudo(r.Context()); err != nil {
		apperr.WriteError(w, err)
		return
	}
	var in struct {
		Email string `json:"email"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	token, err := h.Local.CreateTeamInvite(r.Context(), in.Email)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"inviteToken": token})
}
