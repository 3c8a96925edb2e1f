package http

import (
	"encoding/json"
	"errors"
	"net/http"

	applog "txinsight/internal/log"
	"txinsight/internal/scoring"
	"txinsight/internal/services"
)

func (s *Server) handlePredictCategory(w http.ResponseWriter, r *http.Request) {
	var in TransactionInput
	if err := DecodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := in.validate(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	category, err := s.predictions.Category(r.Context(), in.Description, *in.Amount)
	if err != nil {
		s.structured.LogError(r.Context(), "Category prediction failed", err,
			applog.ComponentScoring, applog.OpPredict, applog.NewFields())
		InternalServerError("failed to predict category").Write(w)
		return
	}
	NewResponse().JSON(map[string]string{"category": category}).Write(w)
}

func (s *Server) handlePredictAnomaly(w http.ResponseWriter, r *http.Request) {
	var in TransactionInput
	if err := DecodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := in.validate(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	anomaly, err := s.predictions.Anomaly(r.Context(), *in.Amount)
	if err != nil {
		s.structured.LogError(r.Context(), "Anomaly prediction failed", err,
			applog.ComponentScoring, applog.OpPredict, applog.NewFields())
		InternalServerError("failed to score transaction").Write(w)
		return
	}
	NewResponse().JSON(map[string]bool{"is_anomaly": anomaly}).Write(w)
}

func (s *Server) handleForecastMonthly(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if req.MonthlySpending == nil {
		BadRequestError("monthly_spending is required").Write(w)
		return
	}

	forecast, err := s.predictions.ForecastMonthly(r.Context(), req.MonthlySpending)
	if err != nil {
		if errors.Is(err, scoring.ErrInvalidSeries) {
			BadRequestError(err.Error()).Write(w)
			return
		}
		s.structured.LogError(r.Context(), "Forecast failed", err,
			applog.ComponentScoring, applog.OpForecast, applog.NewFields())
		InternalServerError("failed to forecast").Write(w)
		return
	}
	NewResponse().JSON(map[string]any{"forecast": numberMap(forecast)}).Write(w)
}

// handleStoredForecast forecasts from every stored record. An empty store
// yields empty series rather than an error.
func (s *Server) handleStoredForecast(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Dates       []string      `json:"dates"`
		Predictions []json.Number `json:"predictions"`
	}{Dates: []string{}, Predictions: []json.Number{}}

	forecast, err := s.predictions.ForecastStored(r.Context())
	switch {
	case errors.Is(err, services.ErrNoHistory):
	case err != nil:
		s.structured.LogError(r.Context(), "Stored forecast failed", err,
			applog.ComponentScoring, applog.OpForecast, applog.NewFields())
		InternalServerError("failed to forecast").Write(w)
		return
	default:
		body.Dates = append(body.Dates, forecast.Dates...)
		for _, p := range forecast.Predictions {
			body.Predictions = append(body.Predictions, number(p))
		}
	}
	NewResponse().JSON(body).Write(w)
}
