package handler

import (
	"net/http"
	"strconv"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/response"
	"github.com/brototype/portal-backend/internal/service"
	"github.com/brototype/portal-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// PasscodeHandler handles admin passcode management.
type PasscodeHandler struct {
	passcodeService *service.PasscodeService
	log             zerolog.Logger
}

// NewPasscodeHandler creates a new PasscodeHandler.
func NewPasscodeHandler(passcodeService *service.PasscodeService, log zerolog.Logger) *PasscodeHandler {
	return &PasscodeHandler{
		passcodeService: passcodeService,
		log:             log.With().Str("component", "passcode_handler").Logger(),
	}
}

// ListPasscodes godoc
// GET /api/v1/admin/passcodes
// Lists passcodes newest first. ?used=true|false filters by state.
func (h *PasscodeHandler) ListPasscodes(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	var used *bool
	if raw := c.Query("used"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"used": "used must be true or false",
			})
			return
		}
		used = &v
	}

	passcodes, pagination, err := h.passcodeService.List(c.Request.Context(), used, page, perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("List passcodes failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, passcodes, pagination)
}

// CreatePasscodes godoc
// POST /api/v1/admin/passcodes
// Issues a batch of new registration passcodes.
func (h *PasscodeHandler) CreatePasscodes(c *gin.Context) {
	var req model.CreatePasscodesRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	passcodes, err := h.passcodeService.Issue(c.Request.Context(), req.Count)
	if err != nil {
		h.log.Error().Err(err).Int("count", req.Count).Msg("Issue passcodes failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, passcodes)
}
