package http

import (
	"errors"
	"net/http"

	"penny/internal/core"
	applog "penny/internal/log"
	"penny/internal/session"
)

type signupData struct {
	navData
	Form   core.SignupForm
	Errors map[string]string
}

type loginData struct {
	navData
	Email string
	Error string
}

// handleSignup shows and processes the sign-up form. Passwords are checked
// against the rules and then discarded.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	st, _ := s.sessions.Load(r)
	data := signupData{navData: s.nav(r.Context(), st, "Sign up", "signup")}

	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "signup.html", "", data)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	data.Form = core.SignupForm{
		FirstName: formValue(r, core.FieldFirstName),
		LastName:  formValue(r, core.FieldLastName),
		Email:     formValue(r, core.FieldEmail),
		Password:  r.Form.Get(core.FieldPassword),
		Confirm:   r.Form.Get(core.FieldConfirm),
	}
	u, err := core.ParseSignupForm(data.Form)
	if err != nil {
		data.Form.Password, data.Form.Confirm = "", ""
		data.Errors = fieldMessages(err)
		s.render(w, r, http.StatusUnprocessableEntity, "signup.html", "signup_form", data)
		return
	}

	ctx, cancel := storeContext(r.Context())
	defer cancel()
	u, err = s.store.CreateUser(ctx, u)
	if errors.Is(err, core.ErrEmailTaken) {
		data.Form.Password, data.Form.Confirm = "", ""
		data.Errors = fieldMessages(&core.FieldError{Field: core.FieldEmail, Value: data.Form.Email, Err: core.ErrEmailTaken})
		s.render(w, r, http.StatusConflict, "signup.html", "signup_form", data)
		return
	}
	if err != nil {
		s.logRequestError(r, "Create user failed", err, applog.ComponentStorage, applog.OpCreate)
		InternalServerError("Your account could not be created. Please try again.").Write(w)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "User signed up", applog.FieldUserID, u.ID)
	s.logIn(w, st, u)
	redirect(w, r, "/budget")
}

// handleLogin attaches an existing account to the session by email.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	st, _ := s.sessions.Load(r)
	if st.LoggedIn() {
		redirect(w, r, "/chat")
		return
	}
	data := loginData{navData: s.nav(r.Context(), st, "Log in", "login")}

	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "login.html", "", data)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	data.Email = formValue(r, core.FieldEmail)
	ctx, cancel := storeContext(r.Context())
	defer cancel()
	u, err := s.store.UserByEmail(ctx, core.NormalizeEmail(data.Email))
	switch {
	case errors.Is(err, core.ErrNotFound):
		data.Error = "No account uses that email. Sign up first?"
		s.render(w, r, http.StatusUnauthorized, "login.html", "login_form", data)
		return
	case err != nil:
		s.logRequestError(r, "User lookup failed", err, applog.ComponentStorage, applog.OpRead)
		InternalServerError("Login is unavailable right now. Please try again.").Write(w)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "User logged in", applog.FieldUserID, u.ID)
	s.logIn(w, st, u)
	redirect(w, r, "/chat")
}

// handleLogout forgets the user and the conversation. The persona choice stays.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	st, isNew := s.sessions.Load(r)
	if !isNew {
		applog.FromContext(r.Context()).InfoContext(r.Context(), "User logged out",
			applog.FieldUserID, st.UserID, applog.FieldSessionID, st.ID)
		st.Logout()
		s.sessions.Save(w, st)
	}
	redirect(w, r, "/")
}

// logIn binds the user to the session. The conversation starts over so a
// previous visitor's transcript is never shown to the new account.
func (s *Server) logIn(w http.ResponseWriter, st *session.State, u core.User) {
	st.UserID = u.ID
	st.Name = u.DisplayName()
	st.EditingGoalID = ""
	st.ResetChat()
	s.sessions.Save(w, st)
}
