package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"guildchat-backend/internal/invites"
	"guildchat-backend/internal/members"
	"guildchat-backend/internal/messaging"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/notifications"
	"guildchat-backend/internal/relationships"
	"guildchat-backend/internal/users"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var sugar *zap.SugaredLogger
var db *sql.DB
var validate = validator.New()

var userStore *users.Store
var memberEngine *members.Engine
var inviteEngine *invites.Engine
var relationshipEngine *relationships.Engine
var messagingEngine *messaging.Engine
var notifyQueue *notifications.Queue

type Engines struct {
	Users         *users.Store
	Members       *members.Engine
	Invites       *invites.Engine
	Relationships *relationships.Engine
	Messaging     *messaging.Engine
	Notifications *notifications.Queue
}

func Setup(isHttps bool, cfg *models.ConfigFile, _sugar *zap.SugaredLogger, _db *sql.DB, engines Engines) error {
	sugar = _sugar
	db = _db

	userStore = engines.Users
	memberEngine = engines.Members
	inviteEngine = engines.Invites
	relationshipEngine = engines.Relationships
	messagingEngine = engines.Messaging
	notifyQueue = engines.Notifications

	r := chi.NewRouter()

	if cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(r chi.Router) {
			r.Post("/login", Login)
			r.Post("/register", Register)
			r.With(UserVerifier).Get("/isLoggedIn", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		})

		api.Route("/user", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/fetch", GetUserInfo)
			r.Post("/update", UpdateUserInfo)
		})

		api.Route("/server", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Post("/create", CreateServer)
			r.Get("/fetch", GetServerList)
			r.Get("/get", GetServer)
			r.Post("/update", UpdateServer)
			r.Post("/delete", DeleteServer)
			r.Post("/leave", LeaveServer)
		})

		api.Route("/members", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/fetch", GetMemberList)
			r.Post("/kick", KickMember)
			r.Post("/update", UpdateMember)
		})

		api.Route("/roles", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/fetch", GetRoleList)
			r.Post("/create", CreateRole)
			r.Post("/update", UpdateRole)
			r.Post("/delete", DeleteRole)
			r.Post("/assign", AssignRole)
			r.Post("/unassign", UnassignRole)
		})

		api.Route("/invites", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/fetch", GetInviteList)
			r.Post("/create", CreateInvite)
			r.Post("/delete", DeleteInvite)
			r.Post("/redeem", RedeemInvite)
		})

		api.Route("/friends", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/fetch", GetFriendList)
			r.Get("/pending", GetPendingRequests)
			r.Post("/request", SendFriendRequest)
			r.Post("/accept", AcceptFriendRequest)
			r.Post("/reject", RejectFriendRequest)
			r.Post("/remove", RemoveFriend)
		})

		api.Route("/blocks", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Post("/block", BlockUser)
			r.Post("/unblock", UnblockUser)
		})

		api.Route("/channel", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Post("/create", CreateChannel)
			r.Get("/fetch", GetChannelList)
		})

		api.Route("/message", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Post("/create", CreateMessage)
			r.Get("/fetch", GetMessageList)
			r.Post("/edit", EditMessage)
			r.Post("/delete", DeleteMessage)
			r.Post("/react", ToggleReaction)
			r.Get("/reactions", GetReactionList)
		})

		api.Route("/dm", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Post("/open", OpenDM)
			r.Post("/create", CreateDMMessage)
			r.Get("/fetch", GetDMMessageList)
		})

		api.Route("/notifications", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/fetch", GetNotificationList)
			r.Post("/read", MarkNotificationRead)
		})

		api.Route("/email", func(r chi.Router) {
			r.Get("/confirm", ConfirmEmail)
		})
	})

	address := fmt.Sprintf("%s:%s", cfg.Address, cfg.Port)

	if isHttps {
		return http.ListenAndServeTLS(address, cfg.TlsCert, cfg.TlsKey, r)
	}
	return http.ListenAndServe(address, r)
}
