package availability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agendaclin/booking-api/internal/handler"
	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/service/availability"
)

type Handler struct {
	service *availability.Service
}

func NewHandler(service *availability.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	grp := r.Group("/availability")
	grp.GET("/validate", h.Validate)
	grp.GET("/next-dates", h.NextDates)
	grp.PUT("", h.Save)
	grp.POST("/absences", h.AddAbsence)
	grp.DELETE("/absences/:id", h.RemoveAbsence)
}

func (h *Handler) Validate(c *gin.Context) {
	doctorID, orgID, ok := doctorAndOrg(c)
	if !ok {
		return
	}

	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date"))
		return
	}

	suggestions := c.DefaultQuery("suggestions", "true") == "true"

	result, err := h.service.Validate(c.Request.Context(), doctorID, orgID, date, c.Query("time"), suggestions)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) NextDates(c *gin.Context) {
	doctorID, orgID, ok := doctorAndOrg(c)
	if !ok {
		return
	}

	from := time.Now()
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid from date"))
			return
		}
		from = parsed
	}

	count := 5
	if raw := c.Query("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 30 {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid count"))
			return
		}
		count = parsed
	}

	dates, err := h.service.GetNextAvailableDates(c.Request.Context(), doctorID, orgID, from, count)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(dates))
}

func (h *Handler) Save(c *gin.Context) {
	var req model.SaveAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	saved, err := h.service.SaveAvailability(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(saved))
}

func (h *Handler) AddAbsence(c *gin.Context) {
	var req model.AddAbsenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	absence, err := h.service.AddAbsence(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(absence))
}

func (h *Handler) RemoveAbsence(c *gin.Context) {
	doctorID, orgID, ok := doctorAndOrg(c)
	if !ok {
		return
	}

	absenceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid absence ID"))
		return
	}

	if err := h.service.RemoveAbsence(c.Request.Context(), doctorID, orgID, absenceID); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
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
