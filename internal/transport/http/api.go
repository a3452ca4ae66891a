package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/broadcast"
	"quiz-room-service/internal/domain"
)

// Callers identify themselves with these headers; authentication happens
// upstream.
const (
	headerUserID   = "X-User-ID"
	headerTenantID = "X-Tenant-ID"
)

// API exposes the room use cases over REST.
type API struct {
	service *app.RoomService
	logger  *zap.Logger
}

func NewAPI(service *app.RoomService, logger *zap.Logger) *API {
	return &API{service: service, logger: logger}
}

// NewRouter assembles the REST API, the room WebSocket and the health check.
func NewRouter(api *API, ws *WSHandler, health http.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/healthz", health)
	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", api.createRoom)
		r.Get("/", api.listRooms)
		r.Get("/code/{code}", api.roomByCode)
		r.Route("/{roomID}", func(r chi.Router) {
			r.Get("/", api.getRoom)
			r.Delete("/", api.deleteRoom)
			r.Get("/state", api.roomState)
			r.Post("/join", api.join)
			r.Post("/countdown", api.countdown)
			r.Post("/start", api.start)
			r.Post("/advance", api.advance)
			r.Post("/cancel", api.cancel)
			r.Post("/finalize", api.finalize)
			r.Get("/leaderboard", api.leaderboard)
			r.Get("/question", api.currentQuestion)
			r.Post("/answers", api.submitAnswer)
			r.Get("/ws", ws.ServeWS)
		})
	})
	r.Route("/participants/{participantID}", func(r chi.Router) {
		r.Get("/", api.getParticipant)
		r.Get("/rank", api.rank)
		r.Post("/ready", api.ready)
		r.Post("/disconnect", api.disconnect)
		r.Post("/reconnect", api.reconnect)
		r.Post("/finish", api.finish)
	})
	return r
}

func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("latency", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func userID(r *http.Request) (string, error) {
	id := r.Header.Get(headerUserID)
	if id == "" {
		id = r.URL.Query().Get("user_id")
	}
	if id == "" {
		return "", domain.Validation("missing " + headerUserID + " header")
	}
	return id, nil
}

type createRoomRequest struct {
	Name              string         `json:"name"`
	QuizID            string         `json:"quiz_id"`
	MaxParticipants   int            `json:"max_participants"`
	IsPublic          bool           `json:"is_public"`
	Settings          map[string]any `json:"settings"`
	QuestionTimeLimit int            `json:"question_time_limit"`
}

func (a *API) createRoom(w http.ResponseWriter, r *http.Request) {
	host, err := userID(r)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	room, err := a.service.CreateRoom(r.Context(), app.CreateRoomInput{
		TenantID:          r.Header.Get(headerTenantID),
		Name:              req.Name,
		QuizID:            req.QuizID,
		HostID:            host,
		MaxParticipants:   req.MaxParticipants,
		IsPublic:          req.IsPublic,
		Settings:          req.Settings,
		QuestionTimeLimit: req.QuestionTimeLimit,
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	tenant := r.Header.Get(headerTenantID)
	list := a.service.ListPublicRooms
	if available, _ := strconv.ParseBool(r.URL.Query().Get("available")); available {
		list = a.service.ListAvailableRooms
	}
	rooms, err := list(r.Context(), tenant)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (a *API) roomByCode(w http.ResponseWriter, r *http.Request) {
	room, err := a.service.GetRoomByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (a *API) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := a.service.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (a *API) deleteRoom(w http.ResponseWriter, r *http.Request) {
	host, err := userID(r)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	if err := a.service.DeleteRoom(r.Context(), chi.URLParam(r, "roomID"), host); err != nil {
		writeError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) roomState(w http.ResponseWriter, r *http.Request) {
	state, err := a.service.RoomState(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type joinRequest struct {
	DisplayName string `json:"display_name"`
}

func (a *API) join(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	p, err := a.service.Join(r.Context(), chi.URLParam(r, "roomID"), user, req.DisplayName)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// hostAction runs a host-only room transition.
func (a *API) hostAction(w http.ResponseWriter, r *http.Request, do func(roomID, hostID string) (any, error)) {
	host, err := userID(r)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	out, err := do(chi.URLParam(r, "roomID"), host)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) countdown(w http.ResponseWriter, r *http.Request) {
	a.hostAction(w, r, func(roomID, hostID string) (any, error) {
		return a.service.BeginCountdown(r.Context(), roomID, hostID)
	})
}

func (a *API) start(w http.ResponseWriter, r *http.Request) {
	a.hostAction(w, r, func(roomID, hostID string) (any, error) {
		return a.service.Start(r.Context(), roomID, hostID)
	})
}

func (a *API) advance(w http.ResponseWriter, r *http.Request) {
	a.hostAction(w, r, func(roomID, hostID string) (any, error) {
		res, err := a.service.Advance(r.Context(), roomID, hostID)
		if err != nil {
			return nil, err
		}
		return advanceResponse(res), nil
	})
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	a.hostAction(w, r, func(roomID, hostID string) (any, error) {
		return a.service.CancelRoom(r.Context(), roomID, hostID)
	})
}

func (a *API) finalize(w http.ResponseWriter, r *http.Request) {
	ranked, err := a.service.Finalize(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, broadcast.Standings(ranked))
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	ordered, err := a.service.Leaderboard(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, broadcast.Standings(ordered))
}

type questionResponse struct {
	Active         bool                    `json:"active"`
	QuestionNumber int                     `json:"question_number,omitempty"`
	Question       *broadcast.QuestionView `json:"question,omitempty"`
}

func (a *API) currentQuestion(w http.ResponseWriter, r *http.Request) {
	q, number, ok, err := a.service.CurrentQuestion(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, questionResponse{})
		return
	}
	view := broadcast.NewQuestionView(q)
	writeJSON(w, http.StatusOK, questionResponse{Active: true, QuestionNumber: number, Question: &view})
}

// answerRequest is what players send; the speed bonus is always derived
// server-side.
type answerRequest struct {
	QuestionID   string   `json:"question_id"`
	Answer       string   `json:"answer"`
	ResponseTime *float64 `json:"response_time"`
}

func (r answerRequest) submission() app.AnswerSubmission {
	return app.AnswerSubmission{
		QuestionID:   r.QuestionID,
		Answer:       r.Answer,
		ResponseTime: r.ResponseTime,
	}
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	roomID := chi.URLParam(r, "roomID")
	p, err := a.service.FindParticipant(r.Context(), roomID, user)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	res, err := a.service.SubmitAnswer(r.Context(), roomID, p.ID, req.submission())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) getParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := a.service.GetParticipant(r.Context(), chi.URLParam(r, "participantID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type rankResponse struct {
	ParticipantID string `json:"participant_id"`
	Rank          int    `json:"rank"`
}

func (a *API) rank(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "participantID")
	rank, err := a.service.CurrentRank(r.Context(), id)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rankResponse{ParticipantID: id, Rank: rank})
}

// participantAction runs a transition the participant's own user triggers.
func (a *API) participantAction(w http.ResponseWriter, r *http.Request, do func(participantID string) (domain.Participant, error)) {
	user, err := userID(r)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	id := chi.URLParam(r, "participantID")
	current, err := a.service.GetParticipant(r.Context(), id)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	if current.UserID != user {
		writeError(w, a.logger, domain.ErrParticipantNotFound)
		return
	}
	p, err := do(id)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	a.participantAction(w, r, func(id string) (domain.Participant, error) {
		return a.service.SetReady(r.Context(), id)
	})
}

func (a *API) disconnect(w http.ResponseWriter, r *http.Request) {
	a.participantAction(w, r, func(id string) (domain.Participant, error) {
		return a.service.Disconnect(r.Context(), id)
	})
}

func (a *API) reconnect(w http.ResponseWriter, r *http.Request) {
	a.participantAction(w, r, func(id string) (domain.Participant, error) {
		return a.service.Reconnect(r.Context(), id)
	})
}

func (a *API) finish(w http.ResponseWriter, r *http.Request) {
	a.participantAction(w, r, func(id string) (domain.Participant, error) {
		return a.service.Finish(r.Context(), id)
	})
}

type advanceBody struct {
	Advanced    bool                 `json:"advanced"`
	Room        domain.Room          `json:"room"`
	Leaderboard []broadcast.Standing `json:"leaderboard,omitempty"`
}

func advanceResponse(res app.AdvanceResult) advanceBody {
	body := advanceBody{Advanced: res.Advanced, Room: res.Room}
	if !res.Advanced {
		body.Leaderboard = broadcast.Standings(res.Leaderboard)
	}
	return body
}
