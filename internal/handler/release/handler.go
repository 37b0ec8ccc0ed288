package release

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agendaclin/booking-api/internal/handler"
	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/service/release"
)

type Handler struct {
	service *release.Service
}

func NewHandler(service *release.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	grp := r.Group("/release")
	grp.GET("/check", h.Check)
	grp.GET("/window", h.Window)
	grp.PUT("", h.Save)
}

func (h *Handler) Check(c *gin.Context) {
	doctorID, orgID, ok := doctorAndOrg(c)
	if !ok {
		return
	}

	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date"))
		return
	}

	result, err := h.service.IsDateReleased(c.Request.Context(), doctorID, orgID, date)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) Window(c *gin.Context) {
	doctorID, orgID, ok := doctorAndOrg(c)
	if !ok {
		return
	}

	window, err := h.service.ValidBookingWindow(c.Request.Context(), doctorID, orgID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(window))
}

func (h *Handler) Save(c *gin.Context) {
	var req model.SaveReleaseScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	saved, err := h.service.SaveSchedule(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(saved))
}

func doctorAndOrg(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	doctorID, err := uuid.Parse(c.Query("doctor_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return uuid.Nil, uuid.Nil, false
	}
	orgID, err := uuid.Parse(c.Query("organization_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid organization ID"))
		return uuid.Nil, uuid.Nil, false
	}
	return doctorID, orgID, true
}
