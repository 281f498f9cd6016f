package dashboard

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hfanalytics/internal/domain/cohort"
	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/cohort/options", h.GetOptions)
	api.GET("/cohort", h.GetCohort)
	api.GET("/dashboard", h.GetDashboard)
	api.GET("/dashboard/:panel", h.GetPanel)
}

// CohortResponse describes the filtered cohort.
type CohortResponse struct {
	Criteria  string                    `json:"criteria"`
	Size      int                       `json:"cohort_size"`
	Total     int                       `json:"total_patients"`
	Relations []dataset.RelationSummary `json:"relations"`
}

func (h *Handler) GetOptions(c echo.Context) error {
	opts, err := h.svc.Options(c.Request().Context())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, opts)
}

func (h *Handler) GetCohort(c echo.Context) error {
	criteria, err := CriteriaFromQuery(c.QueryParams())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	co, err := h.svc.Cohort(c.Request().Context(), criteria)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, CohortResponse{
		Criteria:  criteria.Key(),
		Size:      co.Size(),
		Total:     co.Total,
		Relations: co.Summary(),
	})
}

func (h *Handler) GetDashboard(c echo.Context) error {
	criteria, err := CriteriaFromQuery(c.QueryParams())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Dashboard(c.Request().Context(), criteria)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetPanel(c echo.Context) error {
	id := c.Param("panel")
	if !KnownPanel(id) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("panel %q not found", id))
	}
	criteria, err := CriteriaFromQuery(c.QueryParams())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Dashboard(c.Request().Context(), criteria, id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// HealthHandler reports the identity and relation sizes of the loaded
// dataset, or 503 when it cannot be loaded.
func HealthHandler(snapshots SnapshotProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap, err := snapshots.Snapshot(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"dataset":   snap.Identity,
			"loaded_at": snap.LoadedAt,
			"relations": snap.Summary(),
		})
	}
}

func serviceError(err error) error {
	var loadErr *dataset.LoadError
	switch {
	case errors.Is(err, ErrUnknownPanel):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &loadErr):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// CriteriaFromQuery reads age_min, age_max, gender and ward. gender and ward
// may repeat. An absent parameter leaves that filter open; a parameter given
// only with empty values selects nothing. A single age bound leaves the
// other side open.
func CriteriaFromQuery(q url.Values) (cohort.Criteria, error) {
	var c cohort.Criteria

	lo, hasLo, err := floatParam(q, "age_min")
	if err != nil {
		return c, err
	}
	hi, hasHi, err := floatParam(q, "age_max")
	if err != nil {
		return c, err
	}
	if hasLo || hasHi {
		r := cohort.Range{Lo: math.Inf(-1), Hi: math.Inf(1)}
		if hasLo {
			r.Lo = lo
		}
		if hasHi {
			r.Hi = hi
		}
		c.Age = &r
	}

	c.Genders = selectionParam(q, "gender")
	c.Wards = selectionParam(q, "ward")

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func floatParam(q url.Values, name string) (float64, bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false, fmt.Errorf("invalid %s %q", name, raw)
	}
	return f, true, nil
}

func selectionParam(q url.Values, name string) cohort.Selection {
	raw, ok := q[name]
	if !ok {
		return cohort.Any()
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if v != "" {
			values = append(values, v)
		}
	}
	return cohort.Only(values...)
}
