package server

import (
	"errors"
	"net/http"

	"freqy/internal/auth"

	"github.com/sirupsen/logrus"
)

const invalidLoginMessage = "Invalid login. Please enter valid login credentials."

// handleLogin serves the login form and signs the user in on POST.
func (s *FreqyServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	data := s.newPageData(r, "Login")
	data.Next = safeRedirect(r.FormValue("next"), "")

	if r.Method != http.MethodPost {
		s.renderPage(w, r, "login.html", http.StatusOK, data)
		return
	}

	data.Email = sanitizeInput(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if data.Email == "" || password == "" {
		data.Error = "Please enter your email and password."
		s.renderPage(w, r, "login.html", http.StatusBadRequest, data)
		return
	}

	session, token, err := s.authService.Login(r.Context(), data.Email, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.logger.WithField("email", auth.NormalizeEmail(data.Email)).Warn("Failed login attempt")
		data.Error = invalidLoginMessage
		s.renderPage(w, r, "login.html", http.StatusUnauthorized, data)
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Login failed")
		data.Error = "Something went wrong. Please try again."
		s.renderPage(w, r, "login.html", http.StatusInternalServerError, data)
		return
	}

	s.authService.Sessions().SetSessionCookie(w, session, token)
	http.Redirect(w, r, safeRedirect(data.Next, "/my-playlists"), http.StatusSeeOther)
}

// handleLogout ends the current session.
func (s *FreqyServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.authService.Logout(r.Context(), currentSession(r)); err != nil {
		s.logger.WithError(err).Error("Logout failed")
	}

	s.authService.Sessions().ClearSessionCookie(w)
	http.Redirect(w, r, "/?notice="+noticeLoggedOut, http.StatusSeeOther)
}

// handleSignUp registers a new account and logs it in.
func (s *FreqyServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if currentSession(r) != nil {
		http.Redirect(w, r, "/?notice="+noticeAlreadySignedUp, http.StatusSeeOther)
		return
	}

	data := s.newPageData(r, "Sign Up")
	if r.Method != http.MethodPost {
		s.renderPage(w, r, "signup.html", http.StatusOK, data)
		return
	}

	data.Email = sanitizeInput(r.PostFormValue("email"))
	data.Username = sanitizeInput(r.PostFormValue("username"))
	password := r.PostFormValue("password")

	if password != r.PostFormValue("confirmPassword") {
		data.Error = "Passwords do not match"
		s.renderPage(w, r, "signup.html", http.StatusBadRequest, data)
		return
	}

	user, session, token, err := s.authService.Register(r.Context(), data.Email, data.Username, password)
	var fieldErr *auth.FieldError
	switch {
	case errors.Is(err, auth.ErrDuplicateEmail):
		data.Error = "Email already registered"
		s.renderPage(w, r, "signup.html", http.StatusConflict, data)
		return
	case errors.As(err, &fieldErr):
		data.Error = fieldErr.Message
		s.renderPage(w, r, "signup.html", http.StatusBadRequest, data)
		return
	case err != nil:
		s.logger.WithError(err).Error("Registration failed")
		data.Error = "Something went wrong in registration"
		s.renderPage(w, r, "signup.html", http.StatusInternalServerError, data)
		return
	}

	s.leaderboard.Invalidate()
	s.authService.Sessions().SetSessionCookie(w, session, token)

	s.logger.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User signed up")

	http.Redirect(w, r, "/?notice="+noticeRegistered, http.StatusSeeOther)
}

// handleChangePassword sets a new password for the signed-in user.
func (s *FreqyServer) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	data := s.newPageData(r, "Change Password")
	if r.Method != http.MethodPost {
		s.renderPage(w, r, "change_password.html", http.StatusOK, data)
		return
	}

	newPassword := r.PostFormValue("newPassword")
	if confirm, ok := r.PostForm["confirmPassword"]; ok && confirm[0] != newPassword {
		data.Error = "Passwords do not match"
		s.renderPage(w, r, "change_password.html", http.StatusBadRequest, data)
		return
	}

	err := s.authService.ChangePassword(r.Context(), currentSession(r), newPassword)
	var fieldErr *auth.FieldError
	switch {
	case errors.As(err, &fieldErr):
		data.Error = fieldErr.Message
		s.renderPage(w, r, "change_password.html", http.StatusBadRequest, data)
		return
	case err != nil:
		s.logger.WithError(err).Error("Password change failed")
		data.Error = "Could not change your password."
		s.renderPage(w, r, "change_password.html", http.StatusInternalServerError, data)
		return
	}

	http.Redirect(w, r, "/my-playlists?notice="+noticePasswordChanged, http.StatusSeeOther)
}
