/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built tariff environments for demos. Each scenario is a
	schedule document (factory.Scenarios) holding rate schedules for the
	table oracle and suspension windows for the directory.

AVAILABLE SCENARIOS:

	baseline:           MFN rates with USMCA and KORUS preferences
	section-301:        CN surcharge with a suspended exclusion window
	rolling-exclusions: Overlapping and open-ended suspension windows

HOW SCENARIOS WORK:
 1. Parse and validate the document
 2. Reset the store (suspensions and history)
 3. Replace the table oracle's schedules
 4. Save the suspension windows

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "section-301"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
	They need the table oracle; a remote oracle has no schedules to replace.

SEE ALSO:
  - factory/presets.go: Scenario documents
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/warp/landed-cost/factory"
	"go.uber.org/zap"
)

var errNoTable = errors.New("scenarios require the table oracle")

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	all := factory.Scenarios()
	dtos := make([]ScenarioDTO, len(all))
	for i, s := range all {
		dtos[i] = ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
		return
	}
	s, err := factory.ScenarioByID(current)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario": ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description},
	})
}

// LoadScenario resets the store and installs a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	scenario, err := factory.ScenarioByID(req.ScenarioID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown scenario", err)
		return
	}
	if h.Table == nil {
		writeError(w, http.StatusConflict, "Cannot load scenario", errNoTable)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.loadScenario(r.Context(), scenario); err != nil {
		h.currentScenario = ""
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = scenario.ID

	h.Logger.Info("scenario loaded", zap.String("scenario", scenario.ID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": scenario.ID})
}

func (h *Handler) loadScenario(ctx context.Context, s factory.Scenario) error {
	doc, err := h.Factory.ParseJSON(s.JSON)
	if err != nil {
		return fmt.Errorf("invalid scenario document: %w", err)
	}

	if h.Store != nil {
		if err := h.Store.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset store: %w", err)
		}
	}
	h.Table.Replace(doc.Schedules)

	for _, susp := range doc.Suspensions {
		if _, err := h.Service.SaveSuspension(ctx, susp); err != nil {
			return fmt.Errorf("failed to save suspension %s: %w", susp.ID, err)
		}
	}
	return nil
}

// ResetDatabase clears suspensions and history. Schedules are kept.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "Store cannot be reset", nil)
		return
	}
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
