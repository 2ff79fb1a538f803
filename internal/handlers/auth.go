package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"guildchat-backend/internal/apperrors"
	"guildchat-backend/internal/email"
	"guildchat-backend/internal/jwt"
	"guildchat-backend/internal/keyValue"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/snowflake"
	"guildchat-backend/internal/users"
	appvalidator "guildchat-backend/internal/validator"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func Login(w http.ResponseWriter, r *http.Request) {
	type Login struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var login Login
	err := json.NewDecoder(r.Body).Decode(&login)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	user, err := userStore.GetByEmail(r.Context(), login.Email)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			sugar.Debug(err)
			http.Error(w, "", http.StatusUnauthorized)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	err = bcrypt.CompareHashAndPassword(user.Password, []byte(login.Password))
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusUnauthorized)
		return
	}

	cookie, err := jwt.CreateToken(r.URL.Query().Get("rememberMe") == "true", user.ID)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &cookie)
}

func Register(w http.ResponseWriter, r *http.Request) {
	var registerErrors = make(map[string]string)

	type Registration struct {
		Email           string `json:"email" validate:"email"`
		Username        string `json:"username" validate:"required"`
		Password        string `json:"password" validate:"eqfield=ConfirmPassword,min=6"`
		ConfirmPassword string `json:"confirmPassword"`
	}

	var registration Registration
	err := json.NewDecoder(r.Body).Decode(&registration)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = validate.Struct(registration)
	if err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			for _, e := range validateErrs {
				registerErrors[e.Field()] = e.Tag()
			}
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
	}

	if err := appvalidator.Email(registration.Email); err != nil {
		registerErrors["Email"] = err.Error()
	}
	if err := appvalidator.Username(registration.Username); err != nil {
		registerErrors["Username"] = err.Error()
	}
	if err := appvalidator.Password(registration.Password); err != nil {
		registerErrors["Password"] = err.Error()
	}

	if len(registerErrors) != 0 {
		// sends back 400 with the form field errors
		w.WriteHeader(http.StatusBadRequest)
		encodeErr := json.NewEncoder(w).Encode(registerErrors)
		if encodeErr != nil {
			sugar.Error(encodeErr)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	userID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	passwordBytes, err := bcrypt.GenerateFromPassword([]byte(registration.Password), 12)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	token, err := uuid.NewV7()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	user := users.NewUser(userID, registration.Email, registration.Username, passwordBytes)

	bytes, err := json.Marshal(user)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = keyValue.Set(fmt.Sprintf("registration:%s", token.String()), string(bytes), 1*time.Hour)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = email.SendEmailConfirmation(registration.Email, registration.Username, token.String())
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	_, err = fmt.Fprintf(w, "confirm_email")
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
}

func ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "No confirmation token was provided", http.StatusBadRequest)
		return
	}

	value, err := keyValue.GetDel(fmt.Sprintf("registration:%s", token))
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if value == "" {
		http.Error(w, "Confirmation token is invalid or expired", http.StatusNotFound)
		return
	}

	var user models.User
	err = json.Unmarshal([]byte(value), &user)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = userStore.Create(r.Context(), user)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	sugar.Infof("User ID %d confirmed their email address", user.ID)
}
