package questionnaire

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"medq/internal/app/apiresp"
	"medq/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc questionnaireService
}

type questionnaireService interface {
	ListQuestionnaires(ctx context.Context, userID int64) ([]Summary, error)
	GetQuestionnaire(ctx context.Context, id int64) (*Detail, error)
	ListUserResponses(ctx context.Context, questionnaireID, userID int64) ([]ResponseSet, error)
	SubmitResponses(ctx context.Context, in SubmitInput) (*ResponseSet, error)
}

type submitRequest struct {
	Responses map[int64]json.RawMessage `json:"responses"`
}

type submitResponse struct {
	Message     string       `json:"message"`
	ResponseSet *ResponseSet `json:"response_set"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	items, err := h.svc.ListQuestionnaires(r.Context(), user.ID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := questionnaireID(w, r)
	if !ok {
		return
	}

	item, err := h.svc.GetQuestionnaire(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) UserResponses(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := questionnaireID(w, r)
	if !ok {
		return
	}

	items, err := h.svc.ListUserResponses(r.Context(), id, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := questionnaireID(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := apiresp.DecodeJSON(r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	set, err := h.svc.SubmitResponses(r.Context(), SubmitInput{
		QuestionnaireID: id,
		UserID:          user.ID,
		Responses:       req.Responses,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, submitResponse{Message: "Responses saved", ResponseSet: set})
}

func questionnaireID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid questionnaire id")
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidResponse),
		errors.Is(err, ErrQuestionNotInQuestionnaire):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrQuestionnaireNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
