package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"wedding-sync-server/internal/domain"
	"wedding-sync-server/internal/repository"
	"wedding-sync-server/internal/service"
	"wedding-sync-server/pkg/response"
)

// OperationIntake is the write path for client-submitted mutations.
type OperationIntake interface {
	Submit(ctx context.Context, op *domain.Operation, originConnID string) (*domain.OperationResult, error)
}

// SyncHandler exposes the HTTP side of the sync boundary: operation intake
// and snapshot fetch.
type SyncHandler struct {
	intake    OperationIntake
	snapshots SnapshotProvider
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewSyncHandler(intake OperationIntake, snapshots SnapshotProvider, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		intake:    intake,
		snapshots: snapshots,
		validate:  validator.New(),
		logger:    logger,
	}
}

func (h *SyncHandler) SubmitOperation(w http.ResponseWriter, r *http.Request) {
	var op domain.Operation
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(op); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.intake.Submit(r.Context(), &op, op.OriginConnID)
	if err != nil {
		var ve *service.ValidationError
		switch {
		case errors.As(err, &ve):
			response.Error(w, http.StatusBadRequest, ve.Reason)
		case errors.Is(err, repository.ErrNotFound):
			response.Error(w, http.StatusNotFound, "target entity not found")
		default:
			h.logger.Error("operation intake failed", zap.String("op_id", op.ID), zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "failed to apply operation")
		}
		return
	}

	response.JSON(w, http.StatusOK, result)
}

func (h *SyncHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["eventId"]
	if eventID == "" {
		response.Error(w, http.StatusBadRequest, "event id is required")
		return
	}

	snapshot, err := h.snapshots.BuildSnapshot(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.Error("snapshot build failed", zap.String("event_id", eventID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "failed to build snapshot")
		return
	}

	response.JSON(w, http.StatusOK, snapshot)
}
