package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okonek/teamspace/internal/domain"
	"github.com/okonek/teamspace/internal/service/auth"
	"github.com/okonek/teamspace/internal/service/sample"
	"github.com/okonek/teamspace/internal/service/team"
	"github.com/okonek/teamspace/internal/storage"
	"github.com/okonek/teamspace/internal/ws"
	"github.com/okonek/teamspace/pkg/config"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	teams    team.Service
	samples  sample.Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	cfg      config.AppConfig
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitRecovery  = 5
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
	maxUploadMemory    = 8 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, teamSvc team.Service, sampleSvc sample.Service, hub *ws.Hub, limiter RateLimiter, cfg config.AppConfig, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		logger:  logger,
		auth:    authSvc,
		teams:   teamSvc,
		samples: sampleSvc,
		hub:     hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		cfg:      cfg,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/signup", r.audit("/auth/signup", r.withRateLimit("/auth/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login", r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/logout", r.audit("/auth/logout", r.requireAuth(r.handleLogout)))
	r.mux.HandleFunc("/auth/oauth/callback", r.audit("/auth/oauth/callback", r.withRateLimit("/auth/oauth/callback", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleOAuthCallback)))
	r.mux.HandleFunc("/auth/recovery", r.audit("/auth/recovery", r.withRateLimit("/auth/recovery", rateLimitRecovery, rateWindowDefault, rateLimitKeyIP, r.handleRecoveryRequest)))
	r.mux.HandleFunc("/auth/recovery/confirm", r.audit("/auth/recovery/confirm", r.withRateLimit("/auth/recovery/confirm", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleRecoveryConfirm)))
	r.mux.HandleFunc("/me/profile", r.audit("/me/profile", r.handlerAuthRate("/me/profile", rateLimitUserWrite, rateWindowDefault, r.handleProfile)))
	r.mux.HandleFunc("/avatars/", r.audit("/avatars/", r.handlerAuthRate("/avatars/", rateLimitUserRead, rateWindowDefault, r.handleAvatar)))
	r.mux.HandleFunc("/teams", r.audit("/teams", r.handlerAuthRate("/teams", rateLimitUserWrite, rateWindowDefault, r.handleTeams)))
	r.mux.HandleFunc("/teams/", r.audit("/teams/", r.handleTeamSubroutes))
	r.mux.HandleFunc("/samples", r.audit("/samples", r.handlerAuthRate("/samples", rateLimitUserWrite, rateWindowDefault, r.handleSamples)))
	r.mux.HandleFunc("/samples/", r.audit("/samples/", r.handlerAuthRate("/samples/", rateLimitUserWrite, rateWindowDefault, r.handleSampleSubroutes)))
	r.mux.HandleFunc("/ws/feed", r.audit("/ws/feed", r.handlerAuthRate("/ws/feed", rateLimitWebsocket, rateWindowRealtime, r.handleFeedWS)))
}

func userPayload(user *domain.User) map[string]any {
	return map[string]any{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	}
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if r.hasValidSession(req) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":    "already signed in",
			"redirect": r.cfg.AppURL,
		})
		return
	}
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	creds, err := r.auth.SignUp(req.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	r.setSessionCookie(w, creds.Token)
	writeJSON(w, http.StatusCreated, map[string]any{"user": userPayload(creds.User)})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if r.hasValidSession(req) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":    "already signed in",
			"redirect": r.cfg.AppURL,
		})
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	creds, err := r.auth.SignIn(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	r.setSessionCookie(w, creds.Token)
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(creds.User)})
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	if err := r.auth.SignOut(req.Context(), info.SessionID); err != nil {
		writeAppError(w, err)
		return
	}
	r.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// handleOAuthCallback exchanges the provider redirect's one-time secret
// for a session cookie and sends the browser back to the app.
func (r *Router) handleOAuthCallback(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	userID := req.URL.Query().Get("userId")
	secret := req.URL.Query().Get("secret")
	if userID == "" || secret == "" {
		writeError(w, http.StatusBadRequest, "userId and secret query parameters required")
		return
	}
	creds, err := r.auth.ExchangeLoginToken(req.Context(), userID, secret)
	if err != nil {
		writeAppError(w, err)
		return
	}
	r.setSessionCookie(w, creds.Token)
	http.Redirect(w, req, r.cfg.AppURL, http.StatusFound)
}

func (r *Router) handleRecoveryRequest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := r.auth.RequestRecovery(req.Context(), payload.Email); err != nil {
		writeAppError(w, err)
		return
	}
	// same response whether or not the account exists
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recovery requested"})
}

func (r *Router) handleRecoveryConfirm(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		UserID   string `json:"userId"`
		Secret   string `json:"secret"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.ConfirmRecovery(req.Context(), payload.UserID, payload.Secret, payload.Password); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	switch req.Method {
	case http.MethodGet:
		profile, err := r.auth.GetProfile(req.Context(), info.UserID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	case http.MethodPatch:
		image, clear, fields, err := r.parseImageForm(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		profile, err := r.auth.UpdateProfile(req.Context(), info.UserID, auth.UpdateProfileInput{
			Name:       fields["name"],
			About:      fields["about"],
			Image:      image,
			ClearImage: clear,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleAvatar(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	avatarID := strings.TrimPrefix(req.URL.Path, "/avatars/")
	if avatarID == "" || strings.Contains(avatarID, "/") {
		r.notFound(w)
		return
	}
	url, err := r.auth.AvatarURL(req.Context(), avatarID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (r *Router) handleTeams(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	switch req.Method {
	case http.MethodGet:
		teams, err := r.teams.List(req.Context(), info.UserID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, teams)
	case http.MethodPost:
		image, _, fields, err := r.parseImageForm(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, err := r.teams.Create(req.Context(), info.UserID, team.CreateInput{
			Name:  fields["name"],
			About: fields["about"],
			Image: image,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTeamSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/teams/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	teamID := parts[0]
	rest := parts[1:]

	// accept is reachable without a session; the invite secret is the
	// credential and a session is opened on success
	if len(rest) == 1 && rest[0] == "accept" {
		r.withRateLimit("/teams/accept", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, func(w http.ResponseWriter, req *http.Request) {
			r.handleTeamAccept(w, req, teamID)
		})(w, req)
		return
	}

	r.handlerAuthRate("/teams/", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
		info, ok := authInfoFromContext(req.Context())
		if !ok {
			r.missingAuthContext(w, req)
			return
		}
		switch {
		case len(rest) == 0:
			r.handleTeamByID(w, req, info, teamID)
		case len(rest) == 1 && rest[0] == "invites":
			r.handleTeamInvite(w, req, info, teamID)
		case len(rest) == 1 && rest[0] == "leave":
			r.handleTeamLeave(w, req, info, teamID)
		case len(rest) == 1 && rest[0] == "transfer":
			r.handleTeamTransfer(w, req, info, teamID)
		case len(rest) == 2 && rest[0] == "members" && rest[1] != "":
			r.handleTeamMember(w, req, info, teamID, rest[1])
		case len(rest) == 3 && rest[0] == "members" && rest[1] != "" && (rest[2] == "promote" || rest[2] == "demote"):
			r.handleTeamRoleChange(w, req, info, teamID, rest[1], rest[2])
		default:
			r.notFound(w)
		}
	})(w, req)
}

func (r *Router) handleTeamByID(w http.ResponseWriter, req *http.Request, info authInfo, teamID string) {
	switch req.Method {
	case http.MethodGet:
		detail, err := r.teams.Get(req.Context(), info.UserID, teamID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case http.MethodPatch:
		image, clear, fields, err := r.parseImageForm(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := r.teams.Update(req.Context(), info.UserID, teamID, team.UpdateInput{
			Name:       fields["name"],
			About:      fields["about"],
			Image:      image,
			ClearImage: clear,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := r.teams.Delete(req.Context(), info.UserID, teamID); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTeamInvite(w http.ResponseWriter, req *http.Request, info authInfo, teamID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	invite, err := r.teams.Invite(req.Context(), info.UserID, teamID, payload.Email)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"membershipId": invite.MembershipID,
		"acceptUrl":    invite.AcceptURL,
	})
}

func (r *Router) handleTeamAccept(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		MembershipID string `json:"membershipId"`
		UserID       string `json:"userId"`
		Secret       string `json:"secret"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	membership, err := r.teams.Accept(req.Context(), teamID, payload.MembershipID, payload.UserID, payload.Secret)
	if err != nil {
		writeAppError(w, err)
		return
	}
	creds, err := r.auth.SessionFor(req.Context(), membership.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	r.setSessionCookie(w, creds.Token)
	writeJSON(w, http.StatusOK, map[string]any{
		"teamId": membership.TeamID,
		"user":   userPayload(creds.User),
	})
}

func (r *Router) handleTeamLeave(w http.ResponseWriter, req *http.Request, info authInfo, teamID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	nextTeamID, err := r.teams.Leave(req.Context(), info.UserID, teamID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nextTeamId": nextTeamID})
}

func (r *Router) handleTeamTransfer(w http.ResponseWriter, req *http.Request, info authInfo, teamID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.teams.TransferOwnership(req.Context(), info.UserID, teamID, payload.UserID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ownership transferred"})
}

func (r *Router) handleTeamMember(w http.ResponseWriter, req *http.Request, info authInfo, teamID, targetUserID string) {
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	if err := r.teams.RemoveMember(req.Context(), info.UserID, teamID, targetUserID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "member removed"})
}

func (r *Router) handleTeamRoleChange(w http.ResponseWriter, req *http.Request, info authInfo, teamID, targetUserID, action string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var err error
	if action == "promote" {
		err = r.teams.Promote(req.Context(), info.UserID, teamID, targetUserID)
	} else {
		err = r.teams.Demote(req.Context(), info.UserID, teamID, targetUserID)
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": action + "d"})
}

func (r *Router) handleSamples(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	switch req.Method {
	case http.MethodGet:
		var (
			samples []domain.Sample
			err     error
		)
		if teamID := req.URL.Query().Get("team_id"); teamID != "" {
			samples, err = r.samples.ListByTeam(req.Context(), info.UserID, teamID)
		} else {
			samples, err = r.samples.ListMine(req.Context(), info.UserID)
		}
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, samples)
	case http.MethodPost:
		image, _, fields, err := r.parseImageForm(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, err := r.samples.Create(req.Context(), info.UserID, sample.CreateInput{
			Name:        fields["name"],
			Description: fields["description"],
			TeamID:      fields["team_id"],
			Image:       image,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleSampleSubroutes(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	trimmed := strings.TrimPrefix(req.URL.Path, "/samples/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	sampleID := parts[0]
	if len(parts) == 2 && parts[1] == "image" {
		r.handleSampleImage(w, req, info, sampleID)
		return
	}
	if len(parts) > 1 {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodGet:
		found, err := r.samples.Get(req.Context(), info.UserID, sampleID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, found)
	case http.MethodPatch:
		image, clear, fields, err := r.parseImageForm(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := r.samples.Update(req.Context(), info.UserID, sampleID, sample.UpdateInput{
			Name:        fields["name"],
			Description: fields["description"],
			Image:       image,
			ClearImage:  clear,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := r.samples.Delete(req.Context(), info.UserID, sampleID); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleSampleImage(w http.ResponseWriter, req *http.Request, info authInfo, sampleID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	found, err := r.samples.Get(req.Context(), info.UserID, sampleID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	url, err := r.samples.ImageURL(req.Context(), found.ImageID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleFeedWS streams change events for one collection, optionally
// filtered to a team, over a websocket.
func (r *Router) handleFeedWS(w http.ResponseWriter, req *http.Request) {
	if _, ok := authInfoFromContext(req.Context()); !ok {
		r.missingAuthContext(w, req)
		return
	}
	collection := req.URL.Query().Get("collection")
	if collection == "" {
		collection = domain.CollectionSamples
	}
	if collection != domain.CollectionSamples && collection != domain.CollectionTeams {
		writeError(w, http.StatusBadRequest, "unknown collection")
		return
	}
	teamID := req.URL.Query().Get("team_id")
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(collection, client, teamID)
	go func() {
		defer func() {
			r.hub.Unregister(collection, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// parseImageForm reads either a JSON body or a multipart form carrying an
// optional image file. Text fields come back in the map; clear reports an
// explicit request to drop the existing image.
func (r *Router) parseImageForm(req *http.Request) (*storage.ImageUpload, bool, map[string]string, error) {
	fields := make(map[string]string)
	contentType := req.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		var payload map[string]any
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			return nil, false, nil, errors.New("invalid request body")
		}
		clear := false
		for key, value := range payload {
			switch v := value.(type) {
			case string:
				fields[key] = v
			case bool:
				if key == "clearImage" {
					clear = v
				}
			}
		}
		return nil, clear, fields, nil
	}
	if err := req.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, false, nil, errors.New("invalid multipart form")
	}
	for key, values := range req.MultipartForm.Value {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	clear := fields["clearImage"] == "true"
	file, header, err := req.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, clear, fields, nil
		}
		return nil, false, nil, errors.New("invalid image upload")
	}
	if err := storage.ValidateImage(header.Filename, header.Size); err != nil {
		file.Close()
		return nil, false, nil, err
	}
	return &storage.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        file,
	}, clear, fields, nil
}

func (r *Router) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     r.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(r.cfg.SessionTTL),
		HttpOnly: true,
		Secure:   r.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (r *Router) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     r.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) missingAuthContext(w http.ResponseWriter, req *http.Request) {
	r.logger.Error("auth context missing", "path", req.URL.Path)
	writeError(w, http.StatusInternalServerError, "authorization context missing")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
